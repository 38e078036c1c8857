package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/model"
)

// TokenRepo persists refresh tokens. Only the SHA-256 hash of a token is
// stored, so a database leak does not hand out sessions.
type TokenRepo struct{ db *sqlx.DB }

func NewTokenRepo(db *sqlx.DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenColumns = `id, user_id, token_hash, expires_at, revoked_at, created_at`

// Store records a freshly issued token.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, tokenHash, exp.UTC())
	return err
}

// Lookup returns the owner of a live token.
func (r *TokenRepo) Lookup(ctx context.Context, tokenHash string) (uint64, error) {
	t, err := live(ctx, r.db, tokenHash)
	if err != nil {
		return 0, err
	}
	return t.UserID, nil
}

// Rotate spends the token behind oldHash and stores newHash for the same
// user in one transaction. Two concurrent rotations of the same token
// cannot both succeed.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := live(ctx, tx, oldHash)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE id = ? AND revoked_at IS NULL`, t.ID)
	if err != nil {
		return 0, err
	}
	if err := requireRow(res, ErrRefreshInvalid); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		t.UserID, newHash, exp.UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return t.UserID, nil
}

// Revoke spends a single live token.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res, ErrRefreshInvalid)
}

// RevokeAll spends every live token of a user and returns how many there
// were.
func (r *TokenRepo) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE user_id = ? AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func live(ctx context.Context, q sqlx.QueryerContext, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := sqlx.GetContext(ctx, q, &t, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = ? LIMIT 1`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrRefreshInvalid
	}
	if err != nil {
		return t, err
	}
	if t.RevokedAt != nil || !time.Now().UTC().Before(t.ExpiresAt) {
		return t, ErrRefreshInvalid
	}
	return t, nil
}
