package jwtx

import (
	"context"
	"errors"
)

// KeyResolver supplies the public key for a kid. Implementations may be a
// local KeySet or a remote JWKS cache that fetches on demand, which is why
// Resolve takes a context.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (any, error)
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrMissingKID = errors.New("jwtx: missing kid")
	ErrUnknownKID = errors.New("jwtx: unknown kid")
	ErrInvalidSig = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// NewVerifier returns a Verifier for the given algorithm backed by keys,
// enforcing issuer and audience claims.
func NewVerifier(alg string, keys KeyResolver, issuer string, audience []string) (Verifier, error) {
	switch alg {
	case AlgorithmRS256:
		return NewVerifierRS256(keys, issuer, audience), nil
	case AlgorithmES256:
		return NewVerifierES256(keys, issuer, audience), nil
	default:
		return nil, errors.New("jwtx: unsupported algorithm " + alg)
	}
}
