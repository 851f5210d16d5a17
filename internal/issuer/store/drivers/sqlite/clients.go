package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, name, secret_hash, allowed_scopes, rate_limit_policy, active, protected, created_at, updated_at`

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.SecretHash,
		strings.Join(c.AllowedScopes, " "),
		c.RateLimitPolicy,
		c.Active,
		c.Protected,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return mapConflict(err)
}

func (r *clientsRepo) SetClientActive(ctx context.Context, clientID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clients SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), clientID)
	return err
}

func (r *clientsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanClient(s scanner) (domain.Client, error) {
	var c domain.Client
	var scopes string
	err := s.Scan(
		&c.ID,
		&c.Name,
		&c.SecretHash,
		&scopes,
		&c.RateLimitPolicy,
		&c.Active,
		&c.Protected,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	c.AllowedScopes = splitScopes(scopes)
	return c, nil
}
