package jwtx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/cryptox"
)

// Supported JWT signing algorithms
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
)

// DefaultRetireGrace is how long a rotated-out key stays published in the
// JWKS. It must exceed the access-token TTL or in-flight tokens would fail
// verification after a rotation.
const DefaultRetireGrace = 30 * time.Minute

// KeyManager manages the issuer's signing keys. Exactly one key is active
// for signing at a time; rotated-out keys remain in the published JWKS for
// a grace window so tokens signed before the rotation keep verifying.
type KeyManager struct {
	mu        sync.RWMutex
	active    Signer
	retired   []retiredKey
	algorithm string
	issuer    string
	audience  []string
	rsaBits   int
	grace     time.Duration
}

type retiredKey struct {
	jwk       JWK
	retiredAt time.Time
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Algorithm specifies which signing algorithm to use.
	// Supported values: "RS256", "ES256"
	Algorithm string

	// Issuer is the issuer claim (iss) minted into tokens.
	Issuer string

	// Audience is the list of audience values (aud) minted into tokens.
	Audience []string

	// RSABits specifies the RSA key size for RS256. Defaults to 2048.
	RSABits int

	// RetireGrace is how long rotated-out keys remain published.
	// Defaults to DefaultRetireGrace.
	RetireGrace time.Duration
}

// NewEphemeralKeyManager creates a KeyManager with a freshly generated
// signing key. Keys only exist in memory and are never persisted, so all
// tokens become invalid when the issuer restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	rsaBits := opts.RSABits
	if rsaBits == 0 {
		rsaBits = 2048
	}
	grace := opts.RetireGrace
	if grace <= 0 {
		grace = DefaultRetireGrace
	}

	km := &KeyManager{
		algorithm: opts.Algorithm,
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		rsaBits:   rsaBits,
		grace:     grace,
	}

	signer, err := generateSigner(opts.Algorithm, rsaBits)
	if err != nil {
		return nil, err
	}
	km.active = signer

	return km, nil
}

// generateSigner creates a signer with a fresh key and a random kid.
func generateSigner(algorithm string, rsaBits int) (Signer, error) {
	kid, err := generateKeyID()
	if err != nil {
		return nil, err
	}

	switch algorithm {
	case AlgorithmRS256:
		pemBytes, err := cryptox.GenerateRSAKey(rsaBits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate RS256 key: %w", err)
		}
		return NewSignerRS256(kid, pemBytes)

	case AlgorithmES256:
		pemBytes, err := cryptox.GenerateES256Key()
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate ES256 key: %w", err)
		}
		return NewSignerES256(kid, pemBytes)

	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256)", algorithm)
	}
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// Issuer returns the iss claim value minted into tokens.
func (km *KeyManager) Issuer() string {
	return km.issuer
}

// Audience returns the aud claim values minted into tokens.
func (km *KeyManager) Audience() []string {
	return km.audience
}

// ActiveSigner returns the signer new tokens are minted with.
func (km *KeyManager) ActiveSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active
}

// ActiveKID returns the kid of the active signing key.
func (km *KeyManager) ActiveKID() string {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active.KID()
}

// IsReady returns true if a signing key is loaded.
func (km *KeyManager) IsReady() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active != nil
}

// Rotate generates a fresh signing key and makes it active. The previous
// key stops signing immediately but its public half stays in the JWKS
// until the grace window passes. Returns the new kid.
func (km *KeyManager) Rotate() (string, error) {
	signer, err := generateSigner(km.algorithm, km.rsaBits)
	if err != nil {
		return "", fmt.Errorf("jwtx: rotate: %w", err)
	}

	now := time.Now().UTC()

	km.mu.Lock()
	defer km.mu.Unlock()

	km.retired = append(km.retired, retiredKey{
		jwk:       km.active.PublicJWK(),
		retiredAt: now,
	})
	km.active = signer
	km.pruneLocked(now)

	return signer.KID(), nil
}

// PublicJWKS returns the JWKS to publish: the active key plus any retired
// keys still inside their grace window.
func (km *KeyManager) PublicJWKS() JWKS {
	now := time.Now().UTC()

	km.mu.Lock()
	defer km.mu.Unlock()

	km.pruneLocked(now)

	keys := make([]JWK, 0, len(km.retired)+1)
	keys = append(keys, km.active.PublicJWK())
	for _, r := range km.retired {
		keys = append(keys, r.jwk)
	}
	return JWKS{Keys: keys}
}

// Resolve returns the public key for the given kid, searching the active
// key and any retired keys still inside their grace window. It lets the
// KeyManager serve as a KeyResolver for verifying the issuer's own tokens.
func (km *KeyManager) Resolve(_ context.Context, kid string) (any, error) {
	now := time.Now().UTC()

	km.mu.Lock()
	defer km.mu.Unlock()

	km.pruneLocked(now)

	if km.active != nil && km.active.KID() == kid {
		jwk := km.active.PublicJWK()
		return parseJWKToKey(jwk)
	}
	for _, r := range km.retired {
		if r.jwk.Kid == kid {
			return parseJWKToKey(r.jwk)
		}
	}
	return nil, ErrUnknownKID
}

// pruneLocked drops retired keys past the grace window. Caller holds km.mu.
func (km *KeyManager) pruneLocked(now time.Time) {
	kept := km.retired[:0]
	for _, r := range km.retired {
		if now.Sub(r.retiredAt) < km.grace {
			kept = append(kept, r)
		}
	}
	km.retired = kept
}

// generateKeyID creates a random key identifier using cryptographic entropy.
func generateKeyID() (string, error) {
	token, err := cryptox.GenerateToken(16)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key ID: %w", err)
	}
	return fmt.Sprintf("vouchsafe-%s", token), nil
}
