// Package social performs real provider-side verification of social-login
// tokens, spec.md §9: "Social-provider validation in the source returns
// mock user data; an implementer must either perform real OIDC validation
// or explicitly refuse the flow — do not silently accept tokens." No social
// login exists anywhere in the teacher, so this is grounded on
// golang.org/x/oauth2's client-credentials/token-introspection idiom (seen
// across the retrieved pack wherever a provider userinfo endpoint is
// called) rather than any teacher file.
package social

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/traderguard/authcore/internal/breaker"
)

// Provider is one supported social-login identity provider.
type Provider struct {
	Name            string
	UserInfoURL     string // called with Authorization: Bearer {token}
	EmailField      string // JSON field in the userinfo response holding the email
	VerifiedField   string // JSON field indicating provider-side email verification, if any
}

// Verifier implements strategy.SocialVerifier by calling each configured
// provider's userinfo endpoint and mapping the response to an email.
type Verifier struct {
	providers  map[string]Provider
	httpClient *http.Client
	breakers   *breaker.Facade
}

func New(providers []Provider, breakers *breaker.Facade) *Verifier {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name] = p
	}
	return &Verifier{
		providers:  m,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		breakers:   breakers,
	}
}

func (v *Verifier) SupportedProviders() []string {
	names := make([]string, 0, len(v.providers))
	for name := range v.providers {
		names = append(names, name)
	}
	return names
}

type userInfoError string

func (e userInfoError) Error() string { return string(e) }

const (
	errUnsupportedProvider = userInfoError("social: unsupported provider")
	errTokenRejected       = userInfoError("social: provider rejected token")
	errEmailMissing        = userInfoError("social: provider response carried no verified email")
)

// Verify exchanges token for the provider's userinfo and returns the
// verified email. It never trusts a client-asserted email — only the field
// the provider itself returns in response to the bearer token is used.
// The client-supplied token is wrapped in an oauth2.StaticTokenSource so the
// bearer header is attached the same way a real authorization-code exchange
// would attach it, rather than hand-formatting the header.
func (v *Verifier) Verify(ctx context.Context, provider, token string) (string, error) {
	p, ok := v.providers[provider]
	if !ok {
		return "", errUnsupportedProvider
	}

	oauthClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	oauthClient.Timeout = v.httpClient.Timeout

	return breaker.Execute(ctx, v.breakers, breaker.ExternalAPI, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
		if err != nil {
			return "", err
		}

		resp, err := oauthClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", errTokenRejected
		}

		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", err
		}

		if p.VerifiedField != "" {
			if verified, _ := body[p.VerifiedField].(bool); !verified {
				return "", errEmailMissing
			}
		}
		email, _ := body[p.EmailField].(string)
		if email == "" {
			return "", errEmailMissing
		}
		return email, nil
	})
}
