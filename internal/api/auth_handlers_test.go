package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/tokens"
)

// memoryAuditRepo is a minimal in-process audit.Repository, enough to
// exercise Logout's revocation path without Postgres.
type memoryAuditRepo struct {
	records []audit.Record
}

func (m *memoryAuditRepo) AppendLocked(ctx context.Context, fn func(tipHash string) (audit.Record, error)) (audit.Record, error) {
	tip := ""
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

func testTokenService(t *testing.T) *tokens.Service {
	t.Helper()
	keys := tokens.NewKeySet("kid-1", map[string][]byte{"kid-1": []byte("test-signing-secret")})
	cfg := tokens.Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, Issuer: "authcore-test"}
	return tokens.New(keys, cfg, tokens.NewMemoryRevocationStore())
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	tokenSvc := testTokenService(t)
	auditSvc := audit.New(&memoryAuditRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
	s := &Server{Tokens: tokenSvc, Audit: auditSvc}

	pair, err := tokenSvc.Issue(context.Background(), uuid.New().String(), "fp-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()

	s.Logout(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// the same access token must now fail validation.
	_, err = tokenSvc.Validate(context.Background(), pair.AccessToken, tokens.KindAccess)
	require.Error(t, err)
	assert.ErrorIs(t, err, tokens.ErrRevoked)
}

func TestLogoutRejectsRefreshTokenPresentedAsBearer(t *testing.T) {
	tokenSvc := testTokenService(t)
	auditSvc := audit.New(&memoryAuditRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
	s := &Server{Tokens: tokenSvc, Audit: auditSvc}

	pair, err := tokenSvc.Issue(context.Background(), uuid.New().String(), "fp-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	w := httptest.NewRecorder()

	s.Logout(w, req)
	assert.Equal(t, apperr.HTTPStatus(apperr.KindTokenWrongKind), w.Code)
	assert.Equal(t, "bad_credentials", decodeError(t, w))
}

func TestLogoutRejectsMissingBearerToken(t *testing.T) {
	tokenSvc := testTokenService(t)
	auditSvc := audit.New(&memoryAuditRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
	s := &Server{Tokens: tokenSvc, Audit: auditSvc}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()

	s.Logout(w, req)
	assert.NotEqual(t, http.StatusNoContent, w.Code)
}
