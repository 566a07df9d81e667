package facade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/cryptoutil"
	"github.com/traderguard/authcore/internal/tokens"
)

// memoryAuditRepo is an in-process audit.Repository so Invoke's
// always-audit step can be exercised without Postgres.
type memoryAuditRepo struct {
	records []audit.Record
}

func (m *memoryAuditRepo) AppendLocked(ctx context.Context, fn func(tipHash string) (audit.Record, error)) (audit.Record, error) {
	tip := cryptoutil.GenesisHash
	if len(m.records) > 0 {
		tip = m.records[len(m.records)-1].IntegrityHash
	}
	rec, err := fn(tip)
	if err != nil {
		return audit.Record{}, err
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memoryAuditRepo) RecordsBetween(ctx context.Context, from, to uuid.UUID) ([]audit.Record, error) {
	return m.records, nil
}

func testFacade(t *testing.T, role Role) (*Facade, *tokens.Service, *memoryAuditRepo) {
	t.Helper()
	keys := tokens.NewKeySet("kid-1", map[string][]byte{"kid-1": []byte("test-signing-secret")})
	tokenSvc := tokens.New(keys, tokens.Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, Issuer: "authcore-test"}, tokens.NewMemoryRevocationStore())

	repo := &memoryAuditRepo{}
	auditSvc := audit.New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)

	return New(tokenSvc, NewStaticRoleResolver(role), auditSvc), tokenSvc, repo
}

func TestInvokeRunsAuthenticatedOperationAndAudits(t *testing.T) {
	f, tokenSvc, repo := testFacade(t, RoleViewer)
	ctx := context.Background()

	pair, err := tokenSvc.Issue(ctx, uuid.New().String(), "fp-1")
	require.NoError(t, err)

	op := Operation[string, string]{
		Name: "TEST_OP",
		Execute: func(ctx context.Context, userID uuid.UUID, in string) (string, error) {
			return "echo:" + in, nil
		},
	}

	out, err := Invoke(ctx, f, pair.AccessToken, "203.0.113.1", op, "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", out)
	require.Len(t, repo.records, 1)
	assert.Equal(t, audit.StatusSuccess, repo.records[0].EventStatus)
}

func TestInvokeRejectsBadToken(t *testing.T) {
	f, _, repo := testFacade(t, RoleViewer)
	ctx := context.Background()

	op := Operation[string, string]{
		Name: "TEST_OP",
		Execute: func(ctx context.Context, userID uuid.UUID, in string) (string, error) {
			return "unreachable", nil
		},
	}

	_, err := Invoke(ctx, f, "not-a-real-token", "203.0.113.1", op, "hello")
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))
	require.Len(t, repo.records, 1)
	assert.Equal(t, audit.StatusFailed, repo.records[0].EventStatus)
}

func TestInvokeRejectsInsufficientRole(t *testing.T) {
	f, tokenSvc, _ := testFacade(t, RoleViewer)
	ctx := context.Background()

	pair, err := tokenSvc.Issue(ctx, uuid.New().String(), "fp-1")
	require.NoError(t, err)

	op := Operation[string, string]{
		Name:         "ADMIN_OP",
		RequiredRole: RoleAdmin,
		Execute: func(ctx context.Context, userID uuid.UUID, in string) (string, error) {
			return "unreachable", nil
		},
	}

	_, err = Invoke(ctx, f, pair.AccessToken, "203.0.113.1", op, "hello")
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))
}

func TestInvokeRunsValidateBeforeExecute(t *testing.T) {
	f, tokenSvc, _ := testFacade(t, RoleViewer)
	ctx := context.Background()

	pair, err := tokenSvc.Issue(ctx, uuid.New().String(), "fp-1")
	require.NoError(t, err)

	executed := false
	op := Operation[string, string]{
		Name: "VALIDATED_OP",
		Validate: func(in string) error {
			if in == "" {
				return errors.New("input required")
			}
			return nil
		},
		Execute: func(ctx context.Context, userID uuid.UUID, in string) (string, error) {
			executed = true
			return in, nil
		},
	}

	_, err = Invoke(ctx, f, pair.AccessToken, "203.0.113.1", op, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.False(t, executed)
}
