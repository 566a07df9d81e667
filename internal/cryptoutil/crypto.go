// Package cryptoutil implements the crypto primitives (C4) authcore builds
// on: AEAD encrypt/decrypt, HMAC-SHA256, the audit hash-chain formula, and a
// secure random-token generator. It generalises the teacher's
// internal/crypto/tenant_secrets.go (which hard-coded AES-256-GCM against a
// single env-var key) into primitives the credential-encryption service
// (C5, datakey.go) composes with a KMS-backed key instead of a static one.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/traderguard/authcore/internal/apperr"
)

const (
	nonceSize = 12 // 96-bit nonce, per spec.md §4.3
	tagSize   = 16 // 128-bit GCM authentication tag
)

// SealAESGCM encrypts plaintext under key (must be 32 bytes, AES-256) and
// returns base64("nonce || ciphertext || tag"), matching the layout
// spec.md §4.3 mandates. The nonce is drawn from crypto/rand per call.
func SealAESGCM(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "cipher init failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "gcm init failed", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "rng failure", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenAESGCM reverses SealAESGCM. Any failure — bad base64, truncated
// input, wrong key, or a tampered ciphertext/tag — collapses to
// apperr.KindCryptoTampered without distinguishing which, per spec.md
// §4.3's "must not reveal whether the nonce or the tag was the problem".
func OpenAESGCM(key []byte, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.New(apperr.KindCryptoTampered, "ciphertext is not valid base64")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "cipher init failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "gcm init failed", err)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, apperr.New(apperr.KindCryptoTampered, "ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindCryptoTampered, "authentication failed")
	}
	return plaintext, nil
}

// HMACSHA256 computes a hex-encoded HMAC-SHA256 over data under key.
func HMACSHA256(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data, used for
// device-fingerprint hashing and audit chain links.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GenesisHash is the chain-tip value before any audit record exists,
// spec.md §6: "64 zero characters".
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainHash computes the audit integrity hash. The headline formula in
// spec.md §6 is SHA256(userID|eventType|rfc3339Micros|previousHash); we
// append a fifth, optional segment — a digest of the event's opaque
// details — because spec.md §8's tamper-detection property requires that
// mutating a single byte of `details` on a stored record be caught by
// VerifyChain, which the four-field formula alone cannot do. audit.Append
// and VerifyChain always pass the SHA-256 of the details JSON ("{}" when
// there are none); omitting detailsDigest hashes an empty fifth segment
// (see DESIGN.md for the reasoning behind this extension).
func ChainHash(userID, eventType, createdAtRFC3339Micros, previousHash string, detailsDigest ...string) string {
	digest := ""
	if len(detailsDigest) > 0 {
		digest = detailsDigest[0]
	}
	payload := fmt.Sprintf("%s|%s|%s|%s|%s", userID, eventType, createdAtRFC3339Micros, previousHash, digest)
	return SHA256Hex([]byte(payload))
}

// SecureToken returns a URL-safe base64 token with n bytes of entropy,
// grounded on the teacher's GenerateSecureToken in internal/auth/recovery.go.
func SecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "rng failure", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}

// ConstantTimeEqual compares two strings without leaking timing
// information, matching the teacher's internal/auth/secure_compare.go.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// subtle.ConstantTimeCompare returns 0 at once for unequal lengths, so
		// the length (not the content) is observable through timing.
		return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashToken returns the hex SHA-256 of a raw token, used to store
// verification/reset/backup tokens only in hashed form.
func HashToken(token string) string {
	return SHA256Hex([]byte(token))
}
