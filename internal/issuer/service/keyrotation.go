package service

import (
	"context"
	"fmt"

	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// KeyRotationService rotates the issuer's signing key at runtime. Keys are
// ephemeral: rotation happens in memory and the retired key stays in the
// published JWKS until its grace window closes, so access tokens signed
// before the rotation keep verifying.
type KeyRotationService struct {
	KeyManager *jwtx.KeyManager
}

// Rotate activates a fresh signing key and returns its kid. Tokens minted
// after this call carry the new kid; verifiers that haven't refetched the
// JWKS yet will miss it and refetch on first sight.
func (s *KeyRotationService) Rotate(ctx context.Context) (string, error) {
	if s.KeyManager == nil {
		return "", fmt.Errorf("KeyManager is required")
	}

	oldKID := s.KeyManager.ActiveKID()
	kid, err := s.KeyManager.Rotate()
	if err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("signing key rotated",
		"old_kid", oldKID,
		"new_kid", kid,
	)

	return kid, nil
}
