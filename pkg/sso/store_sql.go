package sso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLTokenStore keeps tokens in the sso_tokens table. The queries run on
// both postgres and sqlite.
type SQLTokenStore struct {
	db *sql.DB
}

// NewSQLTokenStore creates a SQL-backed token store
func NewSQLTokenStore(db *sql.DB) *SQLTokenStore {
	return &SQLTokenStore{db: db}
}

// Create inserts an unconsumed token
func (s *SQLTokenStore) Create(ctx context.Context, t *Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sso_tokens (token, user_email, user_name, expires_at, is_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	`, t.Value, t.Identity.Email, t.Identity.Name, t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create sso token: %w", err)
	}
	return nil
}

// Consume flips is_used in the same statement that checks it, so two
// concurrent consumers cannot both match the row.
func (s *SQLTokenStore) Consume(ctx context.Context, token string, now time.Time) (Identity, error) {
	now = now.UTC()

	var id Identity
	err := s.db.QueryRowContext(ctx, `
		UPDATE sso_tokens
		SET is_used = TRUE, updated_at = $1
		WHERE token = $2 AND is_used = FALSE AND expires_at > $3
		RETURNING user_email, user_name
	`, now, token, now).Scan(&id.Email, &id.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrTokenInvalid
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to consume sso token: %w", err)
	}
	return id, nil
}

// DeleteExpired removes tokens whose expiry has passed
func (s *SQLTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sso_tokens WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sso tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sso tokens: %w", err)
	}
	return n, nil
}
