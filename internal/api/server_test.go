package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/breaker"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestWriteAppErrorCollapsesAuthKindsToBadCredentials(t *testing.T) {
	for _, kind := range []apperr.Kind{
		apperr.KindBadCredentials, apperr.KindTokenMalformed, apperr.KindTokenExpired,
		apperr.KindTokenRevoked, apperr.KindTokenWrongKind, apperr.KindDeviceMismatch,
	} {
		w := httptest.NewRecorder()
		writeAppError(w, apperr.New(kind, "some internal detail that should not leak"))

		assert.Equal(t, apperr.HTTPStatus(kind), w.Code, "kind %s", kind)
		assert.Equal(t, "bad_credentials", decodeError(t, w), "kind %s", kind)
	}
}

func TestWriteAppErrorSurfacesDegradedDependency(t *testing.T) {
	w := httptest.NewRecorder()
	cause := &breaker.BreakerError{Dependency: breaker.Email, Reason: "circuit open"}
	writeAppError(w, apperr.Wrap(apperr.KindUpstreamUnavailable, "email unavailable", cause))

	assert.Equal(t, string(breaker.Email), w.Header().Get("X-Upstream-Degraded"))
	assert.Equal(t, "upstream_unavailable", decodeError(t, w))
}

func TestWriteAppErrorPassesThroughValidationMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeAppError(w, apperr.New(apperr.KindValidation, "newPassword is required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "newPassword is required", decodeError(t, w))
}

func TestWriteAppErrorFallsBackToInternalForUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	writeAppError(w, errors.New("some unwrapped plain error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decodeError(t, w))
}

func TestToUserDTOOmitsSecrets(t *testing.T) {
	// toUserDTO must never surface password_hash or mfa_secret_encrypted;
	// the userDTO type simply has no fields for them, so this pins that
	// shape against accidental additions.
	var dto userDTO
	b, err := json.Marshal(dto)
	require.NoError(t, err)

	var asMap map[string]any
	require.NoError(t, json.Unmarshal(b, &asMap))

	allowed := []string{"id", "email", "fullName", "emailVerified", "mfaEnabled"}
	for k := range asMap {
		assert.Contains(t, allowed, k)
	}
}
