package strategy

import (
	"context"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/mfa"
	"github.com/traderguard/authcore/internal/userstore"
)

// Decryptor decrypts a user's persisted MFA secret. Satisfied by
// *cryptoutil.CredentialEncryptor.
type Decryptor interface {
	Decrypt(ctx context.Context, ciphertext string) ([]byte, error)
}

// MFAStrategy implements spec.md §4.8's MFA flow: identical to password up
// to credential verification, then an additional TOTP check via C7.
type MFAStrategy struct {
	password  *PasswordStrategy
	mfa       *mfa.Service
	users     *userstore.Store
	decryptor Decryptor
	audit     *audit.Service
}

func NewMFAStrategy(password *PasswordStrategy, mfaSvc *mfa.Service, users *userstore.Store, decryptor Decryptor, auditSvc *audit.Service) *MFAStrategy {
	return &MFAStrategy{password: password, mfa: mfaSvc, users: users, decryptor: decryptor, audit: auditSvc}
}

func (m *MFAStrategy) Name() string  { return "mfa" }
func (m *MFAStrategy) Priority() int { return 20 }

func (m *MFAStrategy) Applies(creds Credentials) bool {
	return creds.Email != "" && creds.Password != "" && creds.TOTPCode != ""
}

// Authenticate runs the password check first (ignoring the MFA_REQUIRED
// outcome, since that's exactly what this strategy exists to satisfy), then
// validates the TOTP code against the user's decrypted secret.
func (m *MFAStrategy) Authenticate(ctx context.Context, creds Credentials) (Result, error) {
	withoutCode := creds
	withoutCode.TOTPCode = ""
	res, err := m.password.Authenticate(ctx, withoutCode)
	if err != nil && apperr.KindOf(err) != apperr.KindMFARequired {
		return Result{}, err
	}

	user, lookupErr := m.users.GetByID(ctx, res.UserID)
	if lookupErr != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to load user for mfa check", lookupErr)
	}

	secretBytes, decErr := m.decryptor.Decrypt(ctx, user.MFASecretEncrypted)
	if decErr != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to decrypt mfa secret", decErr)
	}

	ok, valErr := m.mfa.ValidateCode(ctx, user.ID.String(), creds.TOTPCode, string(secretBytes))
	if valErr != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "mfa validation failed", valErr)
	}
	if !ok {
		m.auditResult(ctx, user.ID, audit.StatusFailed, creds)
		return Result{}, apperr.New(apperr.KindBadMFA, "invalid mfa code")
	}

	m.auditResult(ctx, user.ID, audit.StatusSuccess, creds)
	return Result{UserID: user.ID, MFAVerified: true}, nil
}

func (m *MFAStrategy) auditResult(ctx context.Context, userID uuid.UUID, status audit.Status, creds Credentials) {
	ip := creds.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	eventType := audit.EventLogin
	if status == audit.StatusFailed {
		eventType = audit.EventMFAVerifyFailed
	}
	_, _ = m.audit.Append(ctx, audit.Event{
		UserID:            &userID,
		EventType:         eventType,
		EventStatus:       status,
		IPAddress:         ip,
		UserAgent:         creds.UserAgent,
		DeviceFingerprint: creds.DeviceFingerprint,
		Details:           map[string]any{"method": "mfa_totp"},
	})
}
