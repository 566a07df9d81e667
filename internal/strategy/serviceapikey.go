package strategy

import (
	"context"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
)

// ServiceIdentity resolves a pre-provisioned API key to a service caller.
// No user record backs a service identity, matching spec.md §4.8's "no
// user" note.
type ServiceIdentity struct {
	ID   uuid.UUID
	Name string
}

// ServiceKeyResolver looks up the identity behind an API key. Keys are
// compared in constant time by the implementation to avoid timing oracles,
// mirroring the teacher's SecureCompareTokens idiom in
// internal/auth/secure_compare.go.
type ServiceKeyResolver interface {
	Resolve(ctx context.Context, apiKey string) (ServiceIdentity, bool, error)
}

// ServiceAPIKeyStrategy implements spec.md §4.8's inter-service flow:
// highest priority, since presence of the API-key header alone selects it.
type ServiceAPIKeyStrategy struct {
	resolver ServiceKeyResolver
	audit    *audit.Service
}

func NewServiceAPIKeyStrategy(resolver ServiceKeyResolver, auditSvc *audit.Service) *ServiceAPIKeyStrategy {
	return &ServiceAPIKeyStrategy{resolver: resolver, audit: auditSvc}
}

func (s *ServiceAPIKeyStrategy) Name() string  { return "service_api_key" }
func (s *ServiceAPIKeyStrategy) Priority() int { return 40 }

func (s *ServiceAPIKeyStrategy) Applies(creds Credentials) bool {
	return creds.ServiceAPIKey != ""
}

func (s *ServiceAPIKeyStrategy) Authenticate(ctx context.Context, creds Credentials) (Result, error) {
	identity, ok, err := s.resolver.Resolve(ctx, creds.ServiceAPIKey)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to resolve service api key", err)
	}
	if !ok {
		return Result{}, apperr.New(apperr.KindBadCredentials, "unknown service api key")
	}
	ip := creds.IPAddress
	if ip == "" {
		ip = "0.0.0.0"
	}
	_, _ = s.audit.Append(ctx, audit.Event{
		UserID:      &identity.ID,
		EventType:   audit.EventLogin,
		EventStatus: audit.StatusSuccess,
		IPAddress:   ip,
		UserAgent:   creds.UserAgent,
		Details:     map[string]any{"method": "service_api_key", "service": identity.Name},
	})
	return Result{UserID: identity.ID, MFAVerified: true}, nil
}
