package helpers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	token, err := ExtractBearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestExtractBearerTokenRejectsMissingOrMalformed(t *testing.T) {
	cases := []string{"", "Basic abc123", "Bearer", "Bearer "}
	for _, header := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		_, err := ExtractBearerToken(r)
		assert.ErrorIs(t, err, ErrMissingBearerToken, "header %q", header)
	}
}

func TestDeviceFingerprintIsStableForIdenticalHeaders(t *testing.T) {
	build := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.Header.Set("User-Agent", "test-agent/1.0")
		r.Header.Set("Accept-Language", "en-US")
		r.Header.Set("Sec-CH-UA", "\"Chromium\";v=\"120\"")
		return r
	}

	a := DeviceFingerprint(build())
	b := DeviceFingerprint(build())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex-encoded SHA-256
}

func TestDeviceFingerprintDiffersOnUserAgent(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r1.Header.Set("User-Agent", "agent-a")
	r2 := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r2.Header.Set("User-Agent", "agent-b")

	assert.NotEqual(t, DeviceFingerprint(r1), DeviceFingerprint(r2))
}
