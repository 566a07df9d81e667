package helpers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRealIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	r.RemoteAddr = "127.0.0.1:1234"

	ip := GetRealIP(r)
	assert.Equal(t, "203.0.113.5", ip.String())
}

func TestGetRealIPFallsBackToRealIPHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.7")
	r.RemoteAddr = "127.0.0.1:1234"

	ip := GetRealIP(r)
	assert.Equal(t, "198.51.100.7", ip.String())
}

func TestGetRealIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:5555"

	ip := GetRealIP(r)
	assert.Equal(t, "192.0.2.9", ip.String())
}

func TestGetRealIPSkipsUnparseableForwardedForEntries(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip, 203.0.113.9")
	r.RemoteAddr = "127.0.0.1:1234"

	ip := GetRealIP(r)
	assert.Equal(t, "203.0.113.9", ip.String())
}
