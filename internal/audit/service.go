package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/cryptoutil"
)

// PgxRepository persists the audit chain in Postgres. It serialises
// Append calls by taking a row lock on a single anchor row
// (audit_chain_anchor, id=1) before reading the current tip, the same
// `SELECT ... FOR UPDATE` pattern spec.md §5 calls out as an acceptable
// implementation of the chain's serial-anchor requirement, and the same
// transactional-wrapper idiom the teacher used for tenant RLS context in
// internal/storage/db_context.go — repurposed here for a security
// invariant instead of a tenant switch.
type PgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) *PgxRepository {
	return &PgxRepository{pool: pool}
}

func (r *PgxRepository) AppendLocked(ctx context.Context, fn func(tipHash string) (Record, error)) (Record, error) {
	var result Record
	err := pgx.BeginFunc(r.pool, ctx, func(tx pgx.Tx) error {
		var tip string
		err := tx.QueryRow(ctx, `SELECT tip_hash FROM audit_chain_anchor WHERE id = 1 FOR UPDATE`).Scan(&tip)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to lock chain anchor", err)
		}
		if tip == "" {
			tip = cryptoutil.GenesisHash
		}

		rec, err := fn(tip)
		if err != nil {
			return err
		}

		detailsJSON, err := DetailsJSON(rec.Details)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to marshal audit details", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO audit_logs
				(id, user_id, event_type, event_status, ip_address, user_agent,
				 device_fingerprint, details, risk_score, session_id, correlation_id,
				 created_at, previous_hash, integrity_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, rec.ID, rec.UserID, string(rec.EventType), string(rec.EventStatus), rec.IPAddress, rec.UserAgent,
			rec.DeviceFingerprint, detailsJSON, rec.RiskScore, rec.SessionID, rec.CorrelationID,
			rec.CreatedAt, rec.PreviousHash, rec.IntegrityHash)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to insert audit record", err)
		}

		_, err = tx.Exec(ctx, `UPDATE audit_chain_anchor SET tip_hash = $1 WHERE id = 1`, rec.IntegrityHash)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to advance chain anchor", err)
		}

		result = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

func (r *PgxRepository) RecordsBetween(ctx context.Context, from, to uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, event_type, event_status, ip_address, user_agent,
		       device_fingerprint, details, risk_score, session_id, correlation_id,
		       created_at, previous_hash, integrity_hash
		FROM audit_logs
		WHERE created_at >= (SELECT created_at FROM audit_logs WHERE id = $1)
		  AND created_at <= (SELECT created_at FROM audit_logs WHERE id = $2)
		ORDER BY created_at ASC
	`, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query audit chain range", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var detailsJSON []byte
		var eventType, eventStatus string
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &rec.UserID, &eventType, &eventStatus, &rec.IPAddress, &rec.UserAgent,
			&rec.DeviceFingerprint, &detailsJSON, &rec.RiskScore, &rec.SessionID, &rec.CorrelationID,
			&createdAt, &rec.PreviousHash, &rec.IntegrityHash); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan audit record", err)
		}
		rec.EventType = EventType(eventType)
		rec.EventStatus = Status(eventStatus)
		rec.CreatedAt = createdAt
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &rec.Details)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
