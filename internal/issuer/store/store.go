package store

import (
	"context"
	"errors"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and to actively stop people from accidentally doing
// transactions within transactions.
type Store interface {
	Clients() Clients
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh rotation).
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Clients interface {
	// GetClientByID fetches a client for the client_credentials grant.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all clients ordered by creation date (newest first).
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new client (id is ULID).
	CreateClient(ctx context.Context, c domain.Client) error

	// SetClientActive toggles whether the client may authenticate.
	SetClientActive(ctx context.Context, clientID string, active bool) error

	// IsEmpty returns true if there are no clients.
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record. A fingerprint
	// collision returns ErrAlreadyExists.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token record by its fingerprint,
	// scoped to a client so one client's token can never be presented by
	// another.
	GetRefreshTokenByHash(ctx context.Context, clientID, hash string) (domain.RefreshToken, error)

	// RevokeIfActive atomically revokes the token identified by id, but
	// only if it has not been revoked yet. Returns true when this call won
	// the revocation; false means something else got there first.
	// replacedByHash links to a rotation successor and may be empty.
	RevokeIfActive(ctx context.Context, id, replacedByHash string, now time.Time) (bool, error)

	// RevokeSession revokes every still-active token in a session and
	// stamps each member's SessionRevokedAt. Idempotent: already-revoked
	// tokens keep their original revocation state and revoking an empty
	// session is not an error.
	RevokeSession(ctx context.Context, sessionID string, now time.Time) error

	// ListSessionTokens returns all token records of a session, oldest first.
	ListSessionTokens(ctx context.Context, sessionID string) ([]domain.RefreshToken, error)

	// DeleteExpiredRefreshTokens is optional housekeeping: it removes
	// records whose expiry is at least the retention window in the past,
	// but never touches a session that still has a live token so reuse
	// detection keeps its full history.
	DeleteExpiredRefreshTokens(ctx context.Context, retention time.Duration) error
}
