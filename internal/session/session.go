// Package session is the session manager (C9). The teacher has no session
// manager at all — sessions are bare refresh_token rows in Postgres with no
// fast-store mirror and no concurrent-session limit. This package
// implements spec.md §4.7 from scratch: an authoritative pgx-backed store,
// a Redis-backed fast mirror with TTL and two auxiliary index sets, and
// atomic "insert-if-count-below" concurrent-limit enforcement with
// oldest-first eviction.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/breaker"
	"github.com/traderguard/authcore/internal/geoip"
)

// Session is the Session entity, spec.md §3.
type Session struct {
	ID                string
	UserID            uuid.UUID
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	Location          string
	CreatedAt         time.Time
	LastActivity      time.Time
	ExpiresAt         time.Time
	Active            bool
}

// Settings controls per-user session behaviour, spec.md §6.
type Settings struct {
	MaxConcurrentSessions int
	SessionTimeout        time.Duration
	ExtendOnActivity      bool
}

// DefaultSettings mirrors spec.md §6's defaults.
func DefaultSettings() Settings {
	return Settings{MaxConcurrentSessions: 3, SessionTimeout: 30 * time.Minute, ExtendOnActivity: true}
}

// FastStore is the in-memory mirror (Redis in production). CreateIfUnderLimit
// must be atomic per spec.md §4.7's concurrency contract: "the
// concurrent-limit check and the eviction must be atomic with respect to
// other create calls for the same user".
type FastStore interface {
	// CreateIfUnderLimit atomically counts active sessions for userID; if
	// at or above limit, evicts the session with the earliest LastActivity
	// (lowest ID as tie-break), then stores sess with ttl and indexes it
	// under user and device keys. Returns the id(s) evicted, if any.
	CreateIfUnderLimit(ctx context.Context, userID uuid.UUID, limit int, sess Session, ttl time.Duration) (evicted []string, err error)
	Get(ctx context.Context, sessionID string) (*Session, bool, error)
	Touch(ctx context.Context, sess Session, ttl time.Duration) error
	Remove(ctx context.Context, sess Session) error
	RemoveAllForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// AuthoritativeStore is the transactional store of record, pgx-backed in
// production.
type AuthoritativeStore interface {
	Insert(ctx context.Context, sess Session) error
	MarkInactive(ctx context.Context, sessionID string, reason string) error
	MarkAllInactiveForUser(ctx context.Context, userID uuid.UUID, reason string) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	UpdateActivity(ctx context.Context, sessionID string, lastActivity, expiresAt time.Time) error
	DeleteExpiredOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Manager is the session manager (C9).
type Manager struct {
	fast     FastStore
	auth     AuthoritativeStore
	geo      *geoip.Lookup
	breakers *breaker.Facade
	logger   *slog.Logger
	settings Settings
}

func New(fast FastStore, auth AuthoritativeStore, geo *geoip.Lookup, breakers *breaker.Facade, logger *slog.Logger, settings Settings) *Manager {
	return &Manager{fast: fast, auth: auth, geo: geo, breakers: breakers, logger: logger, settings: settings}
}

func newSessionID() (string, error) {
	buf := make([]byte, 16) // 128-bit, spec.md §3
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "rng failure", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create implements spec.md §4.7's create operation.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, fingerprint, ipAddress, userAgent string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	location := "Unknown"
	if loc, err := m.geo.Lookup(ctx, ipAddress); err == nil {
		location = loc
	} else {
		m.logger.Warn("geo-ip lookup failed, using Unknown", "ip", ipAddress, "error", err)
	}

	now := time.Now().UTC()
	sess := Session{
		ID:                id,
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		Location:          location,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         now.Add(m.settings.SessionTimeout),
		Active:            true,
	}

	if err := m.auth.Insert(ctx, sess); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to persist session", err)
	}

	evicted, err := m.fast.CreateIfUnderLimit(ctx, userID, m.settings.MaxConcurrentSessions, sess, m.settings.SessionTimeout)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to mirror session", err)
	}
	for _, evictedID := range evicted {
		if err := m.auth.MarkInactive(ctx, evictedID, "CONCURRENT_LIMIT_EVICTION"); err != nil {
			m.logger.Error("failed to mark evicted session inactive in authoritative store", "session_id", evictedID, "error", err)
		}
	}

	return &sess, nil
}

// Get reads through the fast store, falling back to the authoritative
// store on a miss, returning only active sessions (spec.md §4.7).
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sess, ok, err := m.fast.Get(ctx, sessionID); err == nil && ok {
		if sess.Active {
			return sess, nil
		}
		return nil, apperr.New(apperr.KindNotFound, "session is not active")
	}

	sess, err := m.auth.Get(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "session not found", err)
	}
	if !sess.Active {
		return nil, apperr.New(apperr.KindNotFound, "session is not active")
	}
	return sess, nil
}

// Touch updates last_activity and, if configured, extends expiry.
func (m *Manager) Touch(ctx context.Context, sessionID, ip string) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.IPAddress = ip
	sess.LastActivity = time.Now().UTC()
	if m.settings.ExtendOnActivity {
		sess.ExpiresAt = sess.LastActivity.Add(m.settings.SessionTimeout)
	}
	if err := m.auth.UpdateActivity(ctx, sessionID, sess.LastActivity, sess.ExpiresAt); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update session activity", err)
	}
	if err := m.fast.Touch(ctx, *sess, m.settings.SessionTimeout); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to refresh session mirror", err)
	}
	return nil
}

// Terminate marks a session inactive and removes it from all indexes.
// Idempotent per spec.md §8.
func (m *Manager) Terminate(ctx context.Context, sessionID, reason string) error {
	if err := m.auth.MarkInactive(ctx, sessionID, reason); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to terminate session", err)
	}
	sess, err := m.auth.Get(ctx, sessionID)
	if err == nil {
		_ = m.fast.Remove(ctx, *sess)
	}
	return nil
}

// TerminateAllForUser invalidates every session for userID. Idempotent.
func (m *Manager) TerminateAllForUser(ctx context.Context, userID uuid.UUID, reason string) error {
	if err := m.auth.MarkAllInactiveForUser(ctx, userID, reason); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to terminate user sessions", err)
	}
	if _, err := m.fast.RemoveAllForUser(ctx, userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to clear user session mirror", err)
	}
	return nil
}

// Sweep purges expired authoritative rows older than age, spec.md §4.7's
// "scheduled sweep every 5 minutes purges expired rows older than 7 days".
func (m *Manager) Sweep(ctx context.Context, age time.Duration) (int64, error) {
	return m.auth.DeleteExpiredOlderThan(ctx, age)
}
