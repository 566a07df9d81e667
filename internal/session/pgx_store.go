package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/apperr"
)

// PgxAuthoritativeStore is the transactional store of record for sessions,
// following the teacher's storage.NewPostgres/pgxpool idiom.
type PgxAuthoritativeStore struct {
	pool *pgxpool.Pool
}

func NewPgxAuthoritativeStore(pool *pgxpool.Pool) *PgxAuthoritativeStore {
	return &PgxAuthoritativeStore{pool: pool}
}

func (s *PgxAuthoritativeStore) Insert(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions
			(id, user_id, device_fingerprint, ip_address, user_agent, location,
			 created_at, last_activity, expires_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sess.ID, sess.UserID, sess.DeviceFingerprint, sess.IPAddress, sess.UserAgent, sess.Location,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt, sess.Active)
	return err
}

func (s *PgxAuthoritativeStore) MarkInactive(ctx context.Context, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET active = false, termination_reason = $2 WHERE id = $1`, sessionID, reason)
	return err
}

func (s *PgxAuthoritativeStore) MarkAllInactiveForUser(ctx context.Context, userID uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET active = false, termination_reason = $2 WHERE user_id = $1 AND active`, userID, reason)
	return err
}

func (s *PgxAuthoritativeStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, device_fingerprint, ip_address, user_agent, location,
		       created_at, last_activity, expires_at, active
		FROM sessions WHERE id = $1
	`, sessionID).Scan(&sess.ID, &sess.UserID, &sess.DeviceFingerprint, &sess.IPAddress, &sess.UserAgent,
		&sess.Location, &sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt, &sess.Active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "session not found")
		}
		return nil, err
	}
	return &sess, nil
}

func (s *PgxAuthoritativeStore) UpdateActivity(ctx context.Context, sessionID string, lastActivity, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET last_activity = $2, expires_at = $3 WHERE id = $1`, sessionID, lastActivity, expiresAt)
	return err
}

// DeleteExpiredOlderThan purges rows whose expires_at is older than age,
// the 7-day retention spec.md §4.7's cleanup sweep specifies.
func (s *PgxAuthoritativeStore) DeleteExpiredOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
