// Package tokens is the token service (C6): issues, validates, refreshes
// and revokes bearer credentials bound to a device fingerprint. Grounded
// on the teacher's internal/auth/token.go (TokenProvider interface, Claims
// envelope, kid field) but switched from RS256 asymmetric signing to the
// HMAC-SHA256 spec.md §4.4 mandates — there is no public key to expose via
// JWKS under HMAC, so the teacher's GetJWKS surface is dropped in favour of
// a kid-to-key lookup table that still allows rotation.
package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
)

// Kind distinguishes an access token from a refresh token, spec.md §3.
type Kind string

const (
	KindAccess  Kind = "ACCESS"
	KindRefresh Kind = "REFRESH"
)

// clockSkew is the tolerance spec.md §4.4 allows on expiry checks.
const clockSkew = 30 * time.Second

// Claims is the signed envelope, matching spec.md §3's Token pair fields.
type Claims struct {
	UserID                 string `json:"user_id"`
	Kind                   Kind   `json:"kind"`
	DeviceFingerprintHash  string `json:"dfp"`
	jwt.RegisteredClaims
}

// RevocationStore tracks revoked jti values with a TTL so memory never
// grows unbounded (spec.md §4.4). Backed by Redis in production (C9/C6
// share the same store), or an in-memory map in tests.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// KeySet resolves a kid to its HMAC signing key, so key rotation only
// requires adding a new kid rather than reissuing every outstanding token.
type KeySet struct {
	activeKid string
	keys      map[string][]byte
}

// NewKeySet builds a KeySet whose active signing key is keys[activeKid].
func NewKeySet(activeKid string, keys map[string][]byte) *KeySet {
	return &KeySet{activeKid: activeKid, keys: keys}
}

func (k *KeySet) activeKey() (string, []byte) { return k.activeKid, k.keys[k.activeKid] }

func (k *KeySet) lookup(kid string) ([]byte, bool) {
	key, ok := k.keys[kid]
	return key, ok
}

// Config holds the token service's TTLs, per spec.md §6.
type Config struct {
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 14 days
	Issuer     string
}

// Service is the token service (C6).
type Service struct {
	keys     *KeySet
	cfg      Config
	revoked  RevocationStore
}

func New(keys *KeySet, cfg Config, revoked RevocationStore) *Service {
	return &Service{keys: keys, cfg: cfg, revoked: revoked}
}

// TokenPair is the (access, refresh) bearer pair returned by Issue/Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds, access token lifetime
}

// Issue mints a fresh access+refresh pair for userID bound to fingerprint.
// fingerprint is expected to already be the caller's hashed device
// fingerprint (helpers.DeviceFingerprint) — Issue/Refresh store and
// compare it as-is rather than hashing it again.
func (s *Service) Issue(ctx context.Context, userID, fingerprint string) (*TokenPair, error) {
	access, _, err := s.sign(userID, fingerprint, KindAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.sign(userID, fingerprint, KindRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(s.cfg.AccessTTL.Seconds())}, nil
}

func (s *Service) sign(userID, fingerprint string, kind Kind, ttl time.Duration) (string, string, error) {
	kid, key := s.keys.activeKey()
	if key == nil {
		return "", "", apperr.New(apperr.KindInternal, "no active signing key configured")
	}
	jti := uuid.NewString()
	now := time.Now()
	claims := Claims{
		UserID:                userID,
		Kind:                  kind,
		DeviceFingerprintHash: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInternal, "token signing failed", err)
	}
	return signed, jti, nil
}

// Error kinds for Validate/Refresh, matching spec.md §4.4's TokenError taxonomy.
var (
	ErrMalformed      = apperr.New(apperr.KindTokenMalformed, "token is malformed")
	ErrBadSignature   = apperr.New(apperr.KindTokenMalformed, "token signature invalid")
	ErrExpired        = apperr.New(apperr.KindTokenExpired, "token has expired")
	ErrRevoked        = apperr.New(apperr.KindTokenRevoked, "token has been revoked")
	ErrWrongKind      = apperr.New(apperr.KindTokenWrongKind, "token is the wrong kind")
	ErrDeviceMismatch = apperr.New(apperr.KindDeviceMismatch, "device fingerprint does not match")
)

// Validate parses and verifies token, confirms it carries the caller's
// expected Kind, and returns its Claims on success. A bearer token minted
// as a refresh token (or vice versa) fails with ErrWrongKind even though
// its signature and expiry are otherwise valid — callers that accept
// either kind (there are none today) can pass "" to skip the check.
// Implements the five steps of spec.md §4.4's Verification procedure.
func (s *Service) Validate(ctx context.Context, rawToken string, expectedKind Kind) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := s.keys.lookup(kid)
		if !ok {
			return nil, ErrBadSignature
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(clockSkew))
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	if expectedKind != "" && claims.Kind != expectedKind {
		return nil, ErrWrongKind
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "revocation lookup failed", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Refresh validates a refresh token, checks device-fingerprint binding,
// revokes the old token, and issues a fresh pair — all as required by
// spec.md §4.4 and the one-time-use invariant in §8.
func (s *Service) Refresh(ctx context.Context, refreshToken, currentFingerprint string) (*TokenPair, error) {
	claims, err := s.Validate(ctx, refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.DeviceFingerprintHash != currentFingerprint {
		return nil, ErrDeviceMismatch
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		remaining = 0
	}
	if err := s.revoked.Revoke(ctx, claims.ID, remaining+clockSkew); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to revoke old refresh token", err)
	}

	return s.Issue(ctx, claims.UserID, currentFingerprint)
}

// Revoke marks jti as unusable for the remainder of its natural lifetime.
func (s *Service) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.revoked.Revoke(ctx, jti, ttl)
}
