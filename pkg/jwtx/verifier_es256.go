package jwtx

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ES256Verifier validates JWTs signed using ES256.
type ES256Verifier struct {
	keys   KeyResolver
	issuer string
	aud    []string
}

// NewVerifierES256 creates a verifier resolving ECDSA public keys by kid.
func NewVerifierES256(keys KeyResolver, issuer string, aud []string) *ES256Verifier {
	return &ES256Verifier{keys: keys, issuer: issuer, aud: aud}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *ES256Verifier) Verify(ctx context.Context, tokenStr string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKID
		}

		pub, err := v.keys.Resolve(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: resolve kid %q: %w", kid, err)
		}

		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: invalid EC key type")
		}
		return ecPub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("jwtx: invalid token claims")
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.aud); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
