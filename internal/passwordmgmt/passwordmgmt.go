// Package passwordmgmt is the password management service (C13), grounded
// on the teacher's internal/auth/recovery.go (GenerateSecureToken, hashToken,
// the "pretend success" enumeration-resistant response) and user_service.go's
// ChangePassword (the "revoke all sessions" nuclear option on password
// change).
package passwordmgmt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/cryptoutil"
	"github.com/traderguard/authcore/internal/notify"
	"github.com/traderguard/authcore/internal/session"
	"github.com/traderguard/authcore/internal/strategy"
	"github.com/traderguard/authcore/internal/userstore"
	"github.com/traderguard/authcore/internal/validation"
)

// VerificationTokenStore persists single-use, expiring tokens for the
// reset/verify flows — spec.md §3's verification_tokens entity.
type VerificationTokenStore interface {
	Create(ctx context.Context, userID uuid.UUID, kind string, tokenHash string, ttl time.Duration) error
	Consume(ctx context.Context, kind string, tokenHash string) (uuid.UUID, error)
}

const resetTokenTTL = 15 * time.Minute

// Service runs the three password-management flows. Invalidating "every
// active session for the affected user" (spec.md §4.10's closing paragraph)
// is delegated entirely to session.Manager.TerminateAllForUser. Refresh
// tokens are not bound to a session (see internal/tokens), so terminating
// sessions does not revoke them: a refresh token issued before the password
// change stays usable until it expires or is rotated.
type Service struct {
	users   *userstore.Store
	hasher  strategy.PasswordHasher
	tokens  VerificationTokenStore
	mail    notify.EmailSender
	audit   *audit.Service
	session *session.Manager
}

func New(users *userstore.Store, hasher strategy.PasswordHasher, tokenStore VerificationTokenStore, mail notify.EmailSender, auditSvc *audit.Service, sessionMgr *session.Manager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokenStore, mail: mail, audit: auditSvc, session: sessionMgr}
}

// InitiateReset implements spec.md §4.10's "Initiate reset" stage. The
// response is identical whether or not the email exists — silence is
// golden, the teacher's own phrase for this pattern.
func (s *Service) InitiateReset(ctx context.Context, email, ip string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil
	}

	rawToken, err := cryptoutil.SecureToken(32)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to generate reset token", err)
	}
	if err := s.tokens.Create(ctx, user.ID, "password_reset", cryptoutil.HashToken(rawToken), resetTokenTTL); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to persist reset token", err)
	}

	if err := s.mail.SendPasswordReset(ctx, user.Email, rawToken, ""); err != nil {
		s.auditEvent(ctx, &user.ID, audit.EventPasswordResetInit, audit.StatusPending, ip, "email send failed, retry scheduled")
		return nil
	}
	s.auditEvent(ctx, &user.ID, audit.EventPasswordResetInit, audit.StatusSuccess, ip, "")
	return nil
}

// CompleteReset implements spec.md §4.10's "Reset" stage.
func (s *Service) CompleteReset(ctx context.Context, rawToken, newPassword, ip string) error {
	if err := validation.Chain(newPassword, validation.PasswordPolicy("newPassword")); err != nil {
		return err
	}

	userID, err := s.tokens.Consume(ctx, "password_reset", cryptoutil.HashToken(rawToken))
	if err != nil {
		return apperr.New(apperr.KindValidation, "invalid or expired reset token")
	}

	if err := s.applyNewPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	s.auditEvent(ctx, &userID, audit.EventPasswordReset, audit.StatusSuccess, ip, "")
	return nil
}

// Change implements spec.md §4.10's "Change" stage: requires proof of the
// current password.
func (s *Service) Change(ctx context.Context, userID uuid.UUID, currentPassword, newPassword, ip string) error {
	if err := validation.Chain(newPassword, validation.PasswordPolicy("newPassword")); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "user not found", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return apperr.New(apperr.KindBadCredentials, "current password is incorrect")
	}

	if err := s.applyNewPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	s.auditEvent(ctx, &userID, audit.EventPasswordChange, audit.StatusSuccess, ip, "")
	return nil
}

// applyNewPassword hashes and persists newPassword, then terminates every
// active session for the user — the side effect CompleteReset and Change
// share per spec.md §4.10's closing paragraph. Outstanding refresh tokens
// are not revoked.
func (s *Service) applyNewPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to hash new password", err)
	}
	if err := s.users.SetPasswordHash(ctx, userID, hash); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to persist new password", err)
	}
	if err := s.session.TerminateAllForUser(ctx, userID, "PASSWORD_CHANGED"); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to terminate sessions", err)
	}
	return nil
}

func (s *Service) auditEvent(ctx context.Context, userID *uuid.UUID, eventType audit.EventType, status audit.Status, ip, detail string) {
	if ip == "" {
		ip = "0.0.0.0"
	}
	details := map[string]any{}
	if detail != "" {
		details["detail"] = detail
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:      userID,
		EventType:   eventType,
		EventStatus: status,
		IPAddress:   ip,
		Details:     details,
	})
}
