package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var ErrMissingBearerToken = errors.New("missing bearer token")

// ExtractBearerToken pulls the raw token out of an "Authorization: Bearer
// <token>" header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearerToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMissingBearerToken
	}
	return parts[1], nil
}

// secCHUAHeaders are the Client Hints headers DeviceFingerprint folds in
// when the browser sends them.
var secCHUAHeaders = []string{"Sec-CH-UA", "Sec-CH-UA-Platform", "Sec-CH-UA-Mobile"}

// DeviceFingerprint derives the stable per-device identifier spec.md §6
// describes: stable client headers concatenated and hashed with SHA-256.
// The hash, not the raw input, is what gets embedded in tokens and stored
// on sessions.
func DeviceFingerprint(r *http.Request) string {
	var b strings.Builder
	b.WriteString(r.Header.Get("User-Agent"))
	b.WriteByte('|')
	b.WriteString(r.Header.Get("Accept-Language"))
	for _, h := range secCHUAHeaders {
		b.WriteByte('|')
		b.WriteString(r.Header.Get(h))
	}
	b.WriteByte('|')
	b.WriteString(r.Header.Get("X-Device-Id"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
