package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/apperr"
)

// VerificationTokenStore persists single-use, expiring tokens backing the
// email-verification and password-reset flows (spec.md §3's
// verification_tokens entity). Only the token's hash is ever stored —
// callers (registration, passwordmgmt) hash the raw token before calling
// Create/Consume, mirroring the teacher's recovery.go hashToken pattern.
type VerificationTokenStore struct {
	pool *pgxpool.Pool
}

func NewVerificationTokenStore(pool *pgxpool.Pool) *VerificationTokenStore {
	return &VerificationTokenStore{pool: pool}
}

// Create inserts a new token row, consumed at most once before ttl elapses.
func (s *VerificationTokenStore) Create(ctx context.Context, userID uuid.UUID, kind string, tokenHash string, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_tokens (user_id, kind, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, NOW() + $4::interval, NOW())
	`, userID, kind, tokenHash, ttl.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to persist verification token", err)
	}
	return nil
}

// Consume atomically marks the matching, unexpired, unused token as used
// and returns the user it belongs to — "atomically" so two concurrent
// redemptions of the same raw token cannot both succeed.
func (s *VerificationTokenStore) Consume(ctx context.Context, kind string, tokenHash string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		UPDATE verification_tokens
		SET used_at = NOW()
		WHERE kind = $1 AND token_hash = $2 AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, kind, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.New(apperr.KindValidation, "token is invalid, expired, or already used")
		}
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "failed to consume verification token", err)
	}
	return userID, nil
}

// DeleteExpired purges tokens past their expiry, independent of whether
// they were ever used — the worker's housekeeping sweep (mirrors the
// teacher's CleanExpiredVerificationTokens janitor query).
func (s *VerificationTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to delete expired verification tokens", err)
	}
	return tag.RowsAffected(), nil
}
