package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, client_id, token_hash, session_id, scopes, expires_at, revoked_at, session_revoked_at, replaced_by_hash, created_at`

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, client_id, token_hash, session_id, scopes, expires_at, replaced_by_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.ClientID,
		t.TokenHash,
		t.SessionID,
		strings.Join(t.Scopes, " "),
		t.ExpiresAt,
		t.ReplacedByHash,
		t.CreatedAt,
	)
	return mapConflict(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	clientID, hash string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE client_id = ? AND token_hash = ?`,
		clientID, hash)
	return scanRefreshToken(row)
}

// RevokeIfActive is the rotation linchpin: the WHERE clause only matches a
// not-yet-revoked row, so of two concurrent presentations of the same token
// exactly one sees an affected row.
func (r *refreshTokensRepo) RevokeIfActive(
	ctx context.Context,
	id, replacedByHash string,
	now time.Time,
) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = ?, replaced_by_hash = ?
		 WHERE id = ? AND revoked_at IS NULL`,
		now.UTC(), replacedByHash, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	// COALESCE keeps earlier revocation timestamps intact, so rotation links
	// and per-token revocations survive repeated cascades. session_revoked_at
	// marks every member with the time of the first cascade.
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = COALESCE(revoked_at, ?),
		     session_revoked_at = COALESCE(session_revoked_at, ?)
		 WHERE session_id = ?`,
		now.UTC(), now.UTC(), sessionID)
	return err
}

func (r *refreshTokensRepo) ListSessionTokens(
	ctx context.Context,
	sessionID string,
) ([]domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(
	ctx context.Context,
	retention time.Duration,
) error {
	// A session with a live member keeps its full history: an old stolen
	// token presented later must still match a record for the cascade to
	// fire. Only fully dead sessions are eligible for cleanup.
	now := time.Now().UTC()
	cutoff := now.Add(-retention)
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens
		 WHERE expires_at < ?
		   AND session_id NOT IN (
		       SELECT session_id FROM refresh_tokens
		       WHERE revoked_at IS NULL AND expires_at >= ?
		   )`,
		cutoff, now)
	return err
}

func scanRefreshToken(s scanner) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	var scopes string
	var revokedAt, sessionRevokedAt sql.NullTime
	err := s.Scan(
		&t.ID,
		&t.ClientID,
		&t.TokenHash,
		&t.SessionID,
		&scopes,
		&t.ExpiresAt,
		&revokedAt,
		&sessionRevokedAt,
		&t.ReplacedByHash,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.Scopes = splitScopes(scopes)
	t.RevokedAt = mapNullTimePtr(revokedAt)
	t.SessionRevokedAt = mapNullTimePtr(sessionRevokedAt)
	return t, nil
}
