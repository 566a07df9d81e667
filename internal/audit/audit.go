// Package audit is the tamper-evident audit log service (C8). It replaces
// the teacher's internal/audit/service.go DBLogger — which did a flat
// Postgres insert with no chaining — with an append-only hash chain where
// each record links to the previous record's integrity hash, blockchain
// style, per spec.md §3/§4.6. The slog + pgx idiom is kept from the
// teacher; the chaining, risk scoring, and async high-risk dispatch are new.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/cryptoutil"
)

// EventType enumerates the events the rest of authcore appends. Kept as
// plain strings (not an iota enum) so new event types never shift existing
// stored values, matching the teacher's string-based EventType in the
// original internal/audit/audit.go.
type EventType string

const (
	EventUserRegistration   EventType = "USER_REGISTRATION"
	EventLogin              EventType = "LOGIN"
	EventLogout             EventType = "LOGOUT"
	EventTokenRefresh       EventType = "TOKEN_REFRESH"
	EventPasswordResetInit  EventType = "PASSWORD_RESET_INITIATE"
	EventPasswordReset      EventType = "PASSWORD_RESET"
	EventPasswordChange     EventType = "PASSWORD_CHANGE"
	EventMFAEnroll          EventType = "MFA_ENROLL"
	EventMFAVerifyFailed    EventType = "MFA_VERIFICATION_FAILED"
	EventMFABackupExhausted EventType = "MFA_BACKUP_CODES_EXHAUSTED"
	EventSessionTerminated  EventType = "SESSION_TERMINATED"
	EventSessionEvicted     EventType = "SESSION_EVICTED"
	EventEmailSendPending   EventType = "EMAIL_SEND_PENDING"
	EventEmailVerified      EventType = "EMAIL_VERIFIED"
)

// Status is the outcome of the audited event, spec.md §3.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusBlocked Status = "BLOCKED"
	StatusPending Status = "PENDING"
)

// Record is the Audit record entity, spec.md §3.
type Record struct {
	ID                uuid.UUID
	UserID            *uuid.UUID
	EventType         EventType
	EventStatus       Status
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Details           map[string]any
	RiskScore         int
	SessionID         *uuid.UUID
	CorrelationID     string
	CreatedAt         time.Time
	PreviousHash      string
	IntegrityHash     string
}

// Event is the input to Append: everything the caller knows before the
// chain link and risk score are computed.
type Event struct {
	UserID            *uuid.UUID
	EventType         EventType
	EventStatus       Status
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Details           map[string]any
	SessionID         *uuid.UUID
	CorrelationID     string
}

// Repository persists and reads the hash chain. Append must be
// serialisable with respect to other Append calls (spec.md §4.6 step 6) —
// implementations achieve this with a `SELECT ... FOR UPDATE` on a single
// anchor row, matching the locking idiom the teacher uses for tenant
// context in internal/storage/db_context.go, repurposed here for the
// audit chain's serial anchor instead of a tenant RLS variable.
type Repository interface {
	// AppendLocked runs fn with exclusive access to the chain tip, passing
	// the current tip hash (or cryptoutil.GenesisHash for an empty chain).
	// fn returns the fully computed Record to persist.
	AppendLocked(ctx context.Context, fn func(tipHash string) (Record, error)) (Record, error)
	RecordsBetween(ctx context.Context, from, to uuid.UUID) ([]Record, error)
}

// HighRiskHandler is invoked asynchronously when a record's risk score
// crosses the warn/critical thresholds (spec.md §4.6 step 7). Failures are
// logged, never surfaced to the caller of Append.
type HighRiskHandler func(ctx context.Context, r Record)

// Service is the audit log service (C8).
type Service struct {
	repo   Repository
	logger *slog.Logger
	onWarn HighRiskHandler
	onCrit HighRiskHandler
}

func New(repo Repository, logger *slog.Logger, onWarn, onCrit HighRiskHandler) *Service {
	return &Service{repo: repo, logger: logger, onWarn: onWarn, onCrit: onCrit}
}

// Append validates, scores, chains, and persists one audit record — the
// strictly ordered pipeline in spec.md §4.6.
func (s *Service) Append(ctx context.Context, ev Event) (*Record, error) {
	if ev.EventType == "" {
		return nil, apperr.New(apperr.KindValidation, "event_type must not be empty")
	}
	if ev.EventStatus == "" {
		return nil, apperr.New(apperr.KindValidation, "event_status must not be empty")
	}
	if ev.IPAddress == "" {
		return nil, apperr.New(apperr.KindValidation, "ip_address must not be empty")
	}
	switch ev.EventStatus {
	case StatusSuccess, StatusFailed, StatusBlocked, StatusPending:
	default:
		return nil, apperr.New(apperr.KindValidation, "unrecognised event_status: "+string(ev.EventStatus))
	}

	score := RiskScore(ev.EventStatus, ev.Details)

	rec, err := s.repo.AppendLocked(ctx, func(tipHash string) (Record, error) {
		now := time.Now().UTC()
		userIDStr := "0"
		if ev.UserID != nil {
			userIDStr = ev.UserID.String()
		}
		createdAtStr := now.Format("2006-01-02T15:04:05.000000Z07:00")
		detailsJSON, _ := DetailsJSON(ev.Details)
		integrity := cryptoutil.ChainHash(userIDStr, string(ev.EventType), createdAtStr, tipHash, cryptoutil.SHA256Hex(detailsJSON))
		return Record{
			ID:                uuid.New(),
			UserID:            ev.UserID,
			EventType:         ev.EventType,
			EventStatus:       ev.EventStatus,
			IPAddress:         ev.IPAddress,
			UserAgent:         ev.UserAgent,
			DeviceFingerprint: ev.DeviceFingerprint,
			Details:           ev.Details,
			RiskScore:         score,
			SessionID:         ev.SessionID,
			CorrelationID:     ev.CorrelationID,
			CreatedAt:         now,
			PreviousHash:      tipHash,
			IntegrityHash:     integrity,
		}, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "audit append failed", err)
	}

	s.dispatchHighRisk(rec)
	return &rec, nil
}

// dispatchHighRisk fires the warn/critical handlers asynchronously, never
// blocking Append and never surfacing a handler failure (spec.md §7).
func (s *Service) dispatchHighRisk(rec Record) {
	if rec.RiskScore >= 95 && s.onCrit != nil {
		go func() {
			defer s.recoverAndLog("critical high-risk handler")
			s.onCrit(context.Background(), rec)
		}()
	} else if rec.RiskScore >= 80 && s.onWarn != nil {
		go func() {
			defer s.recoverAndLog("warn high-risk handler")
			s.onWarn(context.Background(), rec)
		}()
	}
}

func (s *Service) recoverAndLog(what string) {
	if r := recover(); r != nil {
		s.logger.Error("high-risk audit handler panicked", "handler", what, "panic", fmt.Sprintf("%v", r))
	}
}

// VerifyChain recomputes hashes for records in [from, to] and returns the
// id of the first inconsistent record, or nil if the chain is intact.
func (s *Service) VerifyChain(ctx context.Context, from, to uuid.UUID) (*uuid.UUID, error) {
	records, err := s.repo.RecordsBetween(ctx, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load records for verification", err)
	}
	for _, r := range records {
		userIDStr := "0"
		if r.UserID != nil {
			userIDStr = r.UserID.String()
		}
		createdAtStr := r.CreatedAt.Format("2006-01-02T15:04:05.000000Z07:00")
		detailsJSON, _ := DetailsJSON(r.Details)
		expected := cryptoutil.ChainHash(userIDStr, string(r.EventType), createdAtStr, r.PreviousHash, cryptoutil.SHA256Hex(detailsJSON))
		if expected != r.IntegrityHash {
			id := r.ID
			return &id, nil
		}
	}
	return nil, nil
}

// DetailsJSON marshals Details for persistence, matching the teacher's
// json.Marshal(params.Metadata) pattern in the original DBLogger.
func DetailsJSON(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}
