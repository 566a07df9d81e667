// Package strategy is the pluggable authentication strategy registry,
// spec.md §4.8. The teacher's Login method in internal/auth/login_service.go
// inlines password verification, MFA branching, and backup-code recovery in
// one function; this package pulls each path out into an independent
// Strategy so new credential types (social, service API key) plug in
// without touching the others.
package strategy

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Credentials is the strategy-agnostic input to an authentication attempt.
// Only the fields a given strategy cares about are populated by the caller.
type Credentials struct {
	Email          string
	Password       string
	TOTPCode       string
	BackupCode     string
	SocialProvider string
	SocialToken    string
	ServiceAPIKey  string
	IPAddress      string
	UserAgent      string
	DeviceFingerprint string
}

// Result is what a strategy produces on success.
type Result struct {
	UserID      uuid.UUID
	MFAVerified bool
}

// Strategy is one credential-verification path.
type Strategy interface {
	// Name identifies the strategy for audit logging.
	Name() string
	// Priority ranks strategies when more than one applies to the same
	// Credentials; higher runs first. spec.md §4.8 ranks
	// service-api-key > social > MFA > password.
	Priority() int
	// Applies reports whether this strategy can handle the given credentials.
	Applies(creds Credentials) bool
	// Authenticate performs the actual verification.
	Authenticate(ctx context.Context, creds Credentials) (Result, error)
}

// Registry holds every registered Strategy and picks the first applicable
// one in priority order.
type Registry struct {
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: append([]Strategy(nil), strategies...)}
	sort.SliceStable(r.strategies, func(i, j int) bool {
		return r.strategies[i].Priority() > r.strategies[j].Priority()
	})
	return r
}

// ErrNoStrategy indicates no registered strategy applies to the credentials.
type noStrategyError struct{}

func (noStrategyError) Error() string { return "no authentication strategy applies to these credentials" }

var ErrNoStrategy error = noStrategyError{}

// Select returns the highest-priority strategy applicable to creds.
func (r *Registry) Select(creds Credentials) (Strategy, error) {
	for _, s := range r.strategies {
		if s.Applies(creds) {
			return s, nil
		}
	}
	return nil, ErrNoStrategy
}

// Authenticate selects and runs the applicable strategy in one call.
func (r *Registry) Authenticate(ctx context.Context, creds Credentials) (Result, string, error) {
	s, err := r.Select(creds)
	if err != nil {
		return Result{}, "", err
	}
	res, err := s.Authenticate(ctx, creds)
	return res, s.Name(), err
}
