// Package registration is the registration pipeline (C12), grounded on the
// teacher's internal/auth/registration_service.go — the RegisterInput shape,
// the bcrypt-first step, and the non-fatal email-send-failure pattern are
// kept; the tenant/invitation branch is dropped (no Tenant entity in
// scope) in favour of spec.md §4.9's plain seven-stage railway.
package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/cryptoutil"
	"github.com/traderguard/authcore/internal/notify"
	"github.com/traderguard/authcore/internal/strategy"
	"github.com/traderguard/authcore/internal/userstore"
	"github.com/traderguard/authcore/internal/validation"
)

const emailVerificationKind = "email_verification"
const emailVerificationTTL = 24 * time.Hour

// TokenStore persists the single-use email-verification token generated at
// stage 7 of Register, and resolves it back to a user at GET
// /auth/verify/email/{token} time. Shared shape with passwordmgmt's store —
// both back onto the same verification_tokens table, distinguished by kind.
type TokenStore interface {
	Create(ctx context.Context, userID uuid.UUID, kind string, tokenHash string, ttl time.Duration) error
	Consume(ctx context.Context, kind string, tokenHash string) (uuid.UUID, error)
}

// Input is the data needed to register a new user, spec.md §4.9 stage 1.
type Input struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	IPAddress string
	UserAgent string
}

// Service runs the registration railway.
type Service struct {
	users  *userstore.Store
	hasher strategy.PasswordHasher
	tokens TokenStore
	mail   notify.EmailSender
	audit  *audit.Service
	logger *slog.Logger
}

func New(users *userstore.Store, hasher strategy.PasswordHasher, tokenStore TokenStore, mail notify.EmailSender, auditSvc *audit.Service, logger *slog.Logger) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokenStore, mail: mail, audit: auditSvc, logger: logger}
}

// Outcome is returned to the caller: the created user plus whether the
// verification email is known to have been sent.
type Outcome struct {
	UserID             string
	VerificationToken  string
	EmailDeliveryPending bool
}

// Register runs stages 1-8 of spec.md §4.9. Stages 4-7 are not wrapped in a
// single SQL transaction here because email delivery (stage 7) is
// explicitly allowed to fail without rolling back user creation — the
// transaction boundary spec.md describes is "persist user, remain
// committed regardless of email outcome", which a single INSERT already
// satisfies without a multi-statement transaction.
func (s *Service) Register(ctx context.Context, in Input) (*Outcome, error) {
	// 1. Validate
	if err := validation.Chain(in.Email, validation.NonEmpty("email"), validation.ValidEmail("email")); err != nil {
		s.auditRegistrationFailure(ctx, in, nil, "VALIDATION")
		return nil, err
	}
	if err := validation.Chain(in.Password, validation.PasswordPolicy("password")); err != nil {
		s.auditRegistrationFailure(ctx, in, nil, "VALIDATION")
		return nil, err
	}
	if err := validation.Chain(in.FirstName, validation.NonEmpty("firstName")); err != nil {
		s.auditRegistrationFailure(ctx, in, nil, "VALIDATION")
		return nil, err
	}
	if err := validation.Chain(in.LastName, validation.NonEmpty("lastName")); err != nil {
		s.auditRegistrationFailure(ctx, in, nil, "VALIDATION")
		return nil, err
	}

	// 2. Uniqueness (case-insensitive, enforced again at insert time by the
	// unique index — this check only improves the error message).
	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		s.auditRegistrationFailure(ctx, in, nil, "INTERNAL")
		return nil, apperr.Wrap(apperr.KindInternal, "failed to check email uniqueness", err)
	}
	if exists {
		s.auditRegistrationFailure(ctx, in, nil, "CONFLICT")
		return nil, apperr.New(apperr.KindConflict, "an account with this email already exists")
	}

	// 3. Build + hash password.
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.auditRegistrationFailure(ctx, in, nil, "INTERNAL")
		return nil, apperr.Wrap(apperr.KindInternal, "failed to hash password", err)
	}

	// 4. Persist user (email_verified=false per spec.md §4.9 stage 3).
	fullName := in.FirstName + " " + in.LastName
	user, err := s.users.Create(ctx, userstore.User{
		Email:         in.Email,
		PasswordHash:  hash,
		FullName:      fullName,
		EmailVerified: false,
	})
	if err != nil {
		reason := "INTERNAL"
		if apperr.KindOf(err) == apperr.KindConflict {
			reason = "CONFLICT"
		}
		s.auditRegistrationFailure(ctx, in, nil, reason)
		return nil, err
	}

	// 5/6. Profile + default role: folded into the users row itself (no
	// separate Profile/Role entities in spec.md §3's Data Model).

	// 7. Email verification token + send (non-fatal).
	token, tokenErr := cryptoutil.SecureToken(32)
	pending := false
	if tokenErr != nil {
		s.logger.Error("failed to generate verification token", "user_id", user.ID, "error", tokenErr)
		pending = true
	} else if storeErr := s.tokens.Create(ctx, user.ID, emailVerificationKind, cryptoutil.HashToken(token), emailVerificationTTL); storeErr != nil {
		s.logger.Error("failed to persist verification token", "user_id", user.ID, "error", storeErr)
		pending = true
	} else if sendErr := s.mail.SendVerification(ctx, user.Email, token, ""); sendErr != nil {
		s.logger.Warn("verification email send failed, will be retried", "user_id", user.ID, "error", sendErr)
		pending = true
		s.auditEmailPending(ctx, user, in)
	}

	// 8. Audit USER_REGISTRATION success.
	ip := in.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:      &user.ID,
		EventType:   audit.EventUserRegistration,
		EventStatus: audit.StatusSuccess,
		IPAddress:   ip,
		UserAgent:   in.UserAgent,
		Details:     map[string]any{"email_delivery_pending": pending},
	})

	return &Outcome{UserID: user.ID.String(), VerificationToken: token, EmailDeliveryPending: pending}, nil
}

// VerifyEmail implements GET /auth/verify/email/{token}: resolves the raw
// token to a user and flips email_verified, or reports it invalid/expired.
func (s *Service) VerifyEmail(ctx context.Context, rawToken, ip string) error {
	userID, err := s.tokens.Consume(ctx, emailVerificationKind, cryptoutil.HashToken(rawToken))
	if err != nil {
		return apperr.New(apperr.KindValidation, "verification link is invalid or expired")
	}
	if err := s.users.SetEmailVerified(ctx, userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to mark email verified", err)
	}
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:      &userID,
		EventType:   audit.EventEmailVerified,
		EventStatus: audit.StatusSuccess,
		IPAddress:   ip,
	})
	return nil
}

// ResendVerification reissues an email-verification token for an
// already-registered, not-yet-verified address. Silent on unknown or
// already-verified emails, matching passwordmgmt.InitiateReset's
// enumeration-resistant shape.
func (s *Service) ResendVerification(ctx context.Context, email, ip string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil || user.EmailVerified {
		return nil
	}

	token, err := cryptoutil.SecureToken(32)
	if err != nil {
		s.logger.Error("failed to generate verification token", "user_id", user.ID, "error", err)
		return nil
	}
	if err := s.tokens.Create(ctx, user.ID, emailVerificationKind, cryptoutil.HashToken(token), emailVerificationTTL); err != nil {
		s.logger.Error("failed to persist verification token", "user_id", user.ID, "error", err)
		return nil
	}
	if err := s.mail.SendVerification(ctx, user.Email, token, ""); err != nil {
		s.logger.Warn("verification email resend failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// auditRegistrationFailure records the USER_REGISTRATION/FAILED event
// spec.md §7 requires on every failure branch of Register, not just the
// success path — userID is nil for every branch that fails before Create
// persists a row.
func (s *Service) auditRegistrationFailure(ctx context.Context, in Input, userID *uuid.UUID, reason string) {
	ip := in.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:      userID,
		EventType:   audit.EventUserRegistration,
		EventStatus: audit.StatusFailed,
		IPAddress:   ip,
		UserAgent:   in.UserAgent,
		Details:     map[string]any{"reason": reason},
	})
}

func (s *Service) auditEmailPending(ctx context.Context, user *userstore.User, in Input) {
	ip := in.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:      &user.ID,
		EventType:   audit.EventEmailSendPending,
		EventStatus: audit.StatusPending,
		IPAddress:   ip,
		UserAgent:   in.UserAgent,
		Details:     map[string]any{"template": "email_verification"},
	})
}
