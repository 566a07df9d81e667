package strategy

import (
	"context"

	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/userstore"
)

// SocialVerifier performs real provider-side token introspection — it must
// never accept a client-supplied token at face value, per spec.md §9's
// explicit warning about the source's mocked social verification.
// Implemented by internal/social.Verifier.
type SocialVerifier interface {
	// Verify checks token against provider and returns the verified email.
	Verify(ctx context.Context, provider, token string) (email string, err error)
	SupportedProviders() []string
}

// SocialStrategy implements spec.md §4.8's social-login flow.
type SocialStrategy struct {
	verifier SocialVerifier
	users    *userstore.Store
	audit    *audit.Service
}

func NewSocialStrategy(verifier SocialVerifier, users *userstore.Store, auditSvc *audit.Service) *SocialStrategy {
	return &SocialStrategy{verifier: verifier, users: users, audit: auditSvc}
}

func (s *SocialStrategy) Name() string  { return "social" }
func (s *SocialStrategy) Priority() int { return 30 }

func (s *SocialStrategy) Applies(creds Credentials) bool {
	return creds.SocialProvider != "" && creds.SocialToken != ""
}

func (s *SocialStrategy) Authenticate(ctx context.Context, creds Credentials) (Result, error) {
	if !s.supported(creds.SocialProvider) {
		return Result{}, apperr.New(apperr.KindValidation, "unsupported social provider: "+creds.SocialProvider)
	}

	email, err := s.verifier.Verify(ctx, creds.SocialProvider, creds.SocialToken)
	if err != nil {
		s.auditRejected(ctx, creds)
		return Result{}, apperr.Wrap(apperr.KindBadCredentials, "provider rejected token", err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		user, err = s.users.Create(ctx, userstore.User{
			Email:         email,
			EmailVerified: true, // the provider vouches for it
		})
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindInternal, "failed to provision social user", err)
		}
	}

	ip := creds.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:            &user.ID,
		EventType:         audit.EventLogin,
		EventStatus:       audit.StatusSuccess,
		IPAddress:         ip,
		UserAgent:         creds.UserAgent,
		DeviceFingerprint: creds.DeviceFingerprint,
		Details:           map[string]any{"method": "social", "provider": creds.SocialProvider},
	})

	return Result{UserID: user.ID, MFAVerified: true}, nil
}

func (s *SocialStrategy) supported(provider string) bool {
	for _, p := range s.verifier.SupportedProviders() {
		if p == provider {
			return true
		}
	}
	return false
}

func (s *SocialStrategy) auditRejected(ctx context.Context, creds Credentials) {
	ip := creds.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		EventType:   audit.EventLogin,
		EventStatus: audit.StatusFailed,
		IPAddress:   ip,
		UserAgent:   creds.UserAgent,
		Details:     map[string]any{"method": "social", "provider": creds.SocialProvider, "detail": "provider rejected token"},
	})
}
