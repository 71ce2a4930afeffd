package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"campus-care-api/internal/model"
)

// RefreshToken is the server side of a refresh credential. Only the sha256
// of the raw token is stored; a rotated token points at its successor.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}

func (rt *RefreshToken) Expired(now time.Time) bool { return !now.Before(rt.ExpiresAt) }

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, db execer, id, userID, hash string, expiresAt time.Time) error {
	_, err := db.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		id, userID, hash, expiresAt,
	)
	return err
}

func (s *Store) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	if err := insertRefreshToken(ctx, s.pool, id, userID, tokenHash, expiresAt); err != nil {
		return "", wrap("create refresh token", err)
	}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var rt RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked, replaced_by, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`, tokenHash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.Revoked, &rt.ReplacedBy, &rt.CreatedAt)
	if err != nil {
		return nil, wrap("refresh token", err)
	}
	return &rt, nil
}

// RotateRefreshToken retires oldID and stores its successor in one
// transaction. Losing a concurrent rotation yields Unauthenticated.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error {
	const op = "rotate refresh token"
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap(op, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = true, replaced_by = $1
		WHERE id = $2 AND revoked = false`,
		newID, oldID,
	)
	if err != nil {
		return wrap(op, err)
	}
	if tag.RowsAffected() == 0 {
		return model.Unauthenticated("refresh token revoked")
	}
	if err := insertRefreshToken(ctx, tx, newID, userID, newHash, newExpiry); err != nil {
		return wrap(op, err)
	}
	return wrap(op, tx.Commit(ctx))
}

// RevokeAllRefreshTokens is used by sign-out and on refresh token reuse.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND NOT revoked`,
		userID,
	)
	return wrap("revoke refresh tokens", err)
}
