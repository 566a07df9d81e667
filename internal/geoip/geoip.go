// Package geoip resolves an IP address to a coarse location string for
// session enrichment (spec.md §4.7 step 4). No geoip SDK appears anywhere
// in the retrieved pack, so this is a small stdlib net/http client against
// a configurable lookup endpoint, wrapped by the external_api breaker —
// justified in DESIGN.md as an out-of-pack dependency with no library to
// ground on.
package geoip

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/traderguard/authcore/internal/breaker"
)

// Lookup resolves IPs to locations. A nil or empty BaseURL makes every
// lookup fail fast, which the caller (session.Manager.Create) turns into
// "Unknown" per spec.md §7's documented local-recovery rule.
type Lookup struct {
	httpClient *http.Client
	baseURL    string
	breakers   *breaker.Facade
}

func New(baseURL string, breakers *breaker.Facade) *Lookup {
	return &Lookup{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		breakers:   breakers,
	}
}

type geoResponse struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Lookup returns "City, Country" for ip, or an error if the dependency is
// unavailable, degraded, or the IP cannot be resolved.
func (l *Lookup) Lookup(ctx context.Context, ip string) (string, error) {
	if l.baseURL == "" {
		return "", errNoProvider
	}
	return breaker.Execute(ctx, l.breakers, breaker.ExternalAPI, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+ip, nil)
		if err != nil {
			return "", err
		}
		resp, err := l.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", errLookupFailed
		}
		var body geoResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", err
		}
		if body.City == "" && body.Country == "" {
			return "", errLookupFailed
		}
		if body.City == "" {
			return body.Country, nil
		}
		return body.City + ", " + body.Country, nil
	})
}

var (
	errNoProvider   = providerError("geoip: no provider configured")
	errLookupFailed = providerError("geoip: lookup failed")
)

type providerError string

func (e providerError) Error() string { return string(e) }
