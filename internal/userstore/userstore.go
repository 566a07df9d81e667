// Package userstore is the pgx-backed repository for the User aggregate,
// spec.md §3. No generated sqlc package was retrieved with the teacher, so
// queries are hand-written against pgxpool following the teacher's
// storage.NewPostgres idiom and the pgtype.{UUID,Text,Timestamptz} field
// shapes the teacher uses throughout internal/auth/user_service.go.
package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/apperr"
)

// Status is the account status enum, spec.md §3:
// ACTIVE, SUSPENDED, LOCKED, DEACTIVATED. StatusDisabled models DEACTIVATED
// — the teacher's user_service.go called the same state "disabled", and
// nothing downstream distinguishes a deliberate operator deactivation from
// the status the teacher's naming already covers.
type Status string

const (
	StatusActive    Status = "active"
	StatusLocked    Status = "locked"
	StatusSuspended Status = "suspended"
	StatusDisabled  Status = "disabled"
)

// User is the account aggregate.
type User struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string
	FullName            string
	Status              Status
	EmailVerified       bool
	MFAEnabled          bool
	MFASecretEncrypted  string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	PasswordChangedAt   time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is currently in a lockout window.
func (u *User) Locked() bool {
	return u.Status == StatusLocked && u.LockedUntil != nil && time.Now().UTC().Before(*u.LockedUntil)
}

var ErrNotFound = errors.New("user not found")
var ErrDuplicateEmail = errors.New("an account with this email already exists")

// Store is the C10 repository.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CanonicalEmail lowercases and trims, matching internal/validation's rule so
// uniqueness checks and lookups agree on the same key.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Create(ctx context.Context, u User) (*User, error) {
	u.Email = CanonicalEmail(u.Email)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, full_name, status, email_verified, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at, updated_at, password_changed_at
	`, u.Email, u.PasswordHash, u.FullName, StatusActive, u.EmailVerified)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.PasswordChangedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, ErrDuplicateEmail.Error(), ErrDuplicateEmail)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create user", err)
	}
	u.Status = StatusActive
	return &u, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.scanOne(ctx, `
		SELECT id, email, password_hash, full_name, status, email_verified, mfa_enabled,
		       mfa_secret_encrypted, failed_login_attempts, locked_until, password_changed_at,
		       created_at, updated_at
		FROM users WHERE id = $1
	`, id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(ctx, `
		SELECT id, email, password_hash, full_name, status, email_verified, mfa_enabled,
		       mfa_secret_encrypted, failed_login_attempts, locked_until, password_changed_at,
		       created_at, updated_at
		FROM users WHERE email = $1
	`, CanonicalEmail(email))
}

func (s *Store) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Status, &u.EmailVerified, &u.MFAEnabled,
		&u.MFASecretEncrypted, &u.FailedLoginAttempts, &u.LockedUntil, &u.PasswordChangedAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.Wrap(apperr.KindNotFound, ErrNotFound.Error(), ErrNotFound)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load user", err)
	}
	return &u, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, CanonicalEmail(email)).Scan(&exists)
	return exists, err
}

// RegisterFailedLogin increments the counter and, once it reaches maxAttempts,
// locks the account until lockDuration has elapsed, spec.md §4.8's lockout rule.
func (s *Store) RegisterFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockDuration time.Duration) (locked bool, err error) {
	var attempts int
	err = s.pool.QueryRow(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts
	`, id).Scan(&attempts)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to record failed login", err)
	}
	if attempts < maxAttempts {
		return false, nil
	}
	lockedUntil := time.Now().UTC().Add(lockDuration)
	_, err = s.pool.Exec(ctx, `
		UPDATE users SET status = $2, locked_until = $3 WHERE id = $1
	`, id, StatusLocked, lockedUntil)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to lock account", err)
	}
	return true, nil
}

// ClearFailedLogins resets the counter and unlocks the account on a
// successful authentication.
func (s *Store) ClearFailedLogins(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL,
		    status = CASE WHEN status = $2 THEN $3 ELSE status END
		WHERE id = $1
	`, id, StatusLocked, StatusActive)
	return err
}

func (s *Store) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, password_changed_at = now(), updated_at = now() WHERE id = $1
	`, id, hash)
	return err
}

// SetStatus directly assigns an account's status — the operator-driven
// suspend/reactivate path (spec.md §3's SUSPENDED state has no automatic
// trigger the way LOCKED does via RegisterFailedLogin).
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update account status", err)
	}
	return nil
}

func (s *Store) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1`, id)
	return err
}

func (s *Store) SetMFA(ctx context.Context, id uuid.UUID, enabled bool, secretEncrypted string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET mfa_enabled = $2, mfa_secret_encrypted = $3, updated_at = now() WHERE id = $1
	`, id, enabled, secretEncrypted)
	return err
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value") || strings.Contains(err.Error(), "unique constraint")
}
