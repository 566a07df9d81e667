package userstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/apperr"
)

// BackupCodeStore persists the hashed, single-use MFA recovery codes
// generated at enrollment (spec.md §4.5), grounded on the teacher's
// CreateBackupCode/ConsumeBackupCode queries in
// internal/auth/mfa_service_impl.go and login_service.go.
type BackupCodeStore struct {
	pool *pgxpool.Pool
}

func NewBackupCodeStore(pool *pgxpool.Pool) *BackupCodeStore {
	return &BackupCodeStore{pool: pool}
}

// Replace deletes any existing codes for userID and inserts hashedCodes in
// their place, inside a transaction so a crash can't leave a user with a
// half-written code set.
func (s *BackupCodeStore) Replace(ctx context.Context, userID uuid.UUID, hashedCodes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to start backup code transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to clear old backup codes", err)
	}
	for _, hash := range hashedCodes {
		if _, err := tx.Exec(ctx, `INSERT INTO mfa_backup_codes (user_id, code_hash) VALUES ($1, $2)`, userID, hash); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to persist backup code", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to commit backup codes", err)
	}
	return nil
}

// Redeem atomically deletes the matching code and reports whether it
// existed — redemption is single-use by construction. Returns the number
// of codes remaining after the redemption so callers can audit
// MFA_BACKUP_CODES_EXHAUSTED without a second round trip. When no code
// matches it returns (false, 0, nil) without counting the codes left.
func (s *BackupCodeStore) Redeem(ctx context.Context, userID uuid.UUID, hashedCode string) (bool, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, 0, apperr.Wrap(apperr.KindInternal, "failed to start redemption transaction", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		DELETE FROM mfa_backup_codes WHERE user_id = $1 AND code_hash = $2 RETURNING id
	`, userID, hashedCode).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, 0, nil
		}
		return false, 0, apperr.Wrap(apperr.KindInternal, "failed to redeem backup code", err)
	}

	var remaining int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = $1`, userID).Scan(&remaining); err != nil {
		return false, 0, apperr.Wrap(apperr.KindInternal, "failed to count remaining backup codes", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, apperr.Wrap(apperr.KindInternal, "failed to commit redemption", err)
	}
	return true, remaining, nil
}
