package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/userstore"
	"github.com/traderguard/authcore/internal/validation"
)

// PasswordHasher mirrors the teacher's auth.PasswordHasher contract
// (internal/auth/password.go), kept verbatim so bcrypt stays the one
// password-hashing algorithm across the module.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AccountLockSettings mirrors spec.md §6's lockout configuration.
type AccountLockSettings struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

func DefaultAccountLockSettings() AccountLockSettings {
	return AccountLockSettings{MaxFailedAttempts: 5, LockDuration: 30 * time.Minute}
}

// PasswordStrategy implements spec.md §4.8's password flow: stages 1-6.
type PasswordStrategy struct {
	users    *userstore.Store
	hasher   PasswordHasher
	audit    *audit.Service
	settings AccountLockSettings
}

func NewPasswordStrategy(users *userstore.Store, hasher PasswordHasher, auditSvc *audit.Service, settings AccountLockSettings) *PasswordStrategy {
	return &PasswordStrategy{users: users, hasher: hasher, audit: auditSvc, settings: settings}
}

func (p *PasswordStrategy) Name() string  { return "password" }
func (p *PasswordStrategy) Priority() int { return 10 }

func (p *PasswordStrategy) Applies(creds Credentials) bool {
	return creds.Email != "" && creds.Password != "" && creds.TOTPCode == "" &&
		creds.SocialToken == "" && creds.ServiceAPIKey == ""
}

func (p *PasswordStrategy) Authenticate(ctx context.Context, creds Credentials) (Result, error) {
	if err := validation.Chain(creds.Email, validation.NonEmpty("email"), validation.ValidEmail("email")); err != nil {
		return Result{}, err
	}
	if err := validation.Chain(creds.Password, validation.MinLength("password", 8)); err != nil {
		return Result{}, err
	}

	user, err := p.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		p.auditAttempt(ctx, nil, audit.StatusFailed, creds, "user not found")
		return Result{}, apperr.New(apperr.KindBadCredentials, "invalid email or password")
	}

	if user.Locked() {
		p.auditAttempt(ctx, &user.ID, audit.StatusBlocked, creds, "account locked")
		return Result{}, apperr.New(apperr.KindAccountLocked, "account is locked")
	}
	if user.Status == userstore.StatusSuspended {
		p.auditAttempt(ctx, &user.ID, audit.StatusBlocked, creds, "account suspended")
		return Result{}, apperr.New(apperr.KindAccountSuspended, "account is suspended")
	}
	if user.Status == userstore.StatusDisabled {
		p.auditAttempt(ctx, &user.ID, audit.StatusBlocked, creds, "account disabled")
		return Result{}, apperr.New(apperr.KindAccountDeactivated, "account is deactivated")
	}

	if err := p.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		locked, lockErr := p.users.RegisterFailedLogin(ctx, user.ID, p.settings.MaxFailedAttempts, p.settings.LockDuration)
		if lockErr != nil {
			return Result{}, apperr.Wrap(apperr.KindInternal, "failed to record failed login", lockErr)
		}
		if locked {
			p.auditAttempt(ctx, &user.ID, audit.StatusBlocked, creds, "max failed attempts reached, account locked")
			return Result{}, apperr.New(apperr.KindAccountLocked, "account is locked")
		}
		p.auditAttempt(ctx, &user.ID, audit.StatusFailed, creds, "bad password")
		return Result{}, apperr.New(apperr.KindBadCredentials, "invalid email or password")
	}

	if err := p.users.ClearFailedLogins(ctx, user.ID); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to clear failed logins", err)
	}

	if user.MFAEnabled {
		return Result{UserID: user.ID, MFAVerified: false}, apperr.New(apperr.KindMFARequired, "mfa code required")
	}

	p.auditAttempt(ctx, &user.ID, audit.StatusSuccess, creds, "password login")
	return Result{UserID: user.ID, MFAVerified: true}, nil
}

func (p *PasswordStrategy) auditAttempt(ctx context.Context, userID *uuid.UUID, status audit.Status, creds Credentials, detail string) {
	ip := creds.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = p.audit.Append(ctx, audit.Event{
		UserID:            userID,
		EventType:         audit.EventLogin,
		EventStatus:       status,
		IPAddress:         ip,
		UserAgent:         creds.UserAgent,
		DeviceFingerprint: creds.DeviceFingerprint,
		Details:           map[string]any{"method": "password", "email": creds.Email, "detail": detail},
	})
}
