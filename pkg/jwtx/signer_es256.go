package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ES256Signer implements the Signer interface using ECDSA P-256 SHA-256.
type ES256Signer struct {
	kid string
	key *ecdsa.PrivateKey
	pub *ecdsa.PublicKey
	alg string
}

// newES256Signer loads an ECDSA P-256 private key from PEM bytes.
// Handles both PKCS8 and SEC1 encodings.
func newES256Signer(kid string, pemKey []byte) (*ES256Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for EC key")
	}

	var key *ecdsa.PrivateKey

	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse SEC1: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		ek, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not ECDSA private key")
		}
		key = ek
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	if key.Curve != elliptic.P256() {
		return nil, errors.New("jwtx: ES256 requires a P-256 key")
	}

	return &ES256Signer{
		kid: kid,
		key: key,
		pub: &key.PublicKey,
		alg: jwt.SigningMethodES256.Alg(),
	}, nil
}

func (s *ES256Signer) Alg() string { return s.alg }
func (s *ES256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *ES256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns a JWK for inclusion in a JWKS.
func (s *ES256Signer) PublicJWK() JWK {
	return NewES256JWK(s.kid, "sig", s.alg, s.pub)
}

// Validate does a quick sanity check to make sure we actually have keys.
func (s *ES256Signer) Validate() error {
	if s.key == nil || s.pub == nil {
		return errors.New("jwtx: nil EC key")
	}
	return nil
}
