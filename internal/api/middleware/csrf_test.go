package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFMiddlewareSetsCookieOnFirstGet(t *testing.T) {
	handler := CSRFMiddleware(passthrough())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "csrf_token", cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestCSRFMiddlewareRejectsUnsafeMethodWithoutHeader(t *testing.T) {
	handler := CSRFMiddleware(passthrough())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "known-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFMiddlewareAcceptsMatchingHeaderAndCookie(t *testing.T) {
	handler := CSRFMiddleware(passthrough())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "known-token"})
	req.Header.Set("X-CSRF-Token", "known-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCSRFMiddlewareRejectsMismatchedHeader(t *testing.T) {
	handler := CSRFMiddleware(passthrough())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "known-token"})
	req.Header.Set("X-CSRF-Token", "wrong-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSecureCompareCSRFTokens(t *testing.T) {
	assert.True(t, SecureCompareCSRFTokens("abc", "abc"))
	assert.False(t, SecureCompareCSRFTokens("abc", "abd"))
	assert.False(t, SecureCompareCSRFTokens("abc", "abcd"))
}
