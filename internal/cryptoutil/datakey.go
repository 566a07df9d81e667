package cryptoutil

import (
	"container/list"
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/breaker"
)

// KMSClient is the subset of the AWS KMS SDK the credential-encryption
// service needs, so tests can substitute a fake without touching AWS.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// dataKeyEntry is one LRU/TTL cache slot, mirroring the Data key entity in
// spec.md §3: plaintext only ever lives here, ciphertext is kept alongside
// (its SHA-256 keys the cache and it is embedded in every envelope sealed
// under this key), and CreatedAt drives TTL eviction.
type dataKeyEntry struct {
	keyID      string
	plaintext  []byte
	ciphertext []byte
	createdAt  time.Time
}

// CredentialEncryptor is the credential-encryption service (C5): it
// acquires data keys from KMS (C3-wrapped), caches the plaintext half with
// an LRU+TTL policy, and performs AEAD field encryption with it. Grounded
// on the teacher's package-level EncryptTenantSecret/DecryptTenantSecret
// (internal/crypto/tenant_secrets.go), generalised from a single
// env-var key to KMS-issued, rotatable data keys.
type CredentialEncryptor struct {
	kms      KMSClient
	breakers *breaker.Facade
	keyID    string // the KMS CMK id/alias used to generate data keys
	ttl      time.Duration
	cap      int
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element // fingerprint(ciphertext) -> LRU element
	order   *list.List                // front = most recently used
	current string                    // fingerprint of the entry Encrypt should use
}

// NewCredentialEncryptor builds a CredentialEncryptor. ttl and cap default
// to spec.md §4.3's suggested 1 hour / 100 entries when zero.
func NewCredentialEncryptor(client KMSClient, breakers *breaker.Facade, kmsKeyID string, ttl time.Duration, cap int, logger *slog.Logger) *CredentialEncryptor {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cap <= 0 {
		cap = 100
	}
	return &CredentialEncryptor{
		kms:      client,
		breakers: breakers,
		keyID:    kmsKeyID,
		ttl:      ttl,
		cap:      cap,
		logger:   logger,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// acquireDataKey returns the data key Encrypt should seal new plaintext
// under, fetching a fresh one from KMS (through the kms breaker) when the
// current entry is missing or has aged past ttl. The cache is keyed by a
// fingerprint of the KMS-wrapped ciphertext blob, not the CMK id, so more
// than one data-key generation can live in the LRU at once — see
// resolveDataKey, which looks an entry up by that same fingerprint on
// decrypt.
func (c *CredentialEncryptor) acquireDataKey(ctx context.Context) (*dataKeyEntry, error) {
	c.mu.Lock()
	if el, ok := c.entries[c.current]; ok {
		entry := el.Value.(*dataKeyEntry)
		if time.Since(entry.createdAt) <= c.ttl {
			c.order.MoveToFront(el)
			c.mu.Unlock()
			return entry, nil
		}
	}
	c.mu.Unlock()

	out, err := breaker.Execute(ctx, c.breakers, breaker.KMS, func(ctx context.Context) (*kms.GenerateDataKeyOutput, error) {
		return c.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   &c.keyID,
			KeySpec: kmstypes.DataKeySpecAes256,
		})
	})
	if err != nil {
		return nil, err
	}

	entry := &dataKeyEntry{
		keyID:      c.keyID,
		plaintext:  out.Plaintext,
		ciphertext: out.CiphertextBlob,
		createdAt:  time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.cacheEntry(entry)
	return entry, nil
}

// resolveDataKey returns the plaintext data key that wrapped a given
// ciphertext, per spec.md §8's round-trip property: it must hold across
// RotateKeys/TTL expiry, not just within one cache window. A cache hit
// (fingerprinted on the wrapped blob) avoids a KMS round trip; a miss falls
// back to Unwrap so previously rotated-away key material is still
// decryptable through KMS.
func (c *CredentialEncryptor) resolveDataKey(ctx context.Context, wrappedKey []byte) (*dataKeyEntry, error) {
	fp := SHA256Hex(wrappedKey)

	c.mu.Lock()
	if el, ok := c.entries[fp]; ok {
		entry := el.Value.(*dataKeyEntry)
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return entry, nil
	}
	c.mu.Unlock()

	plaintext, err := c.Unwrap(ctx, wrappedKey)
	if err != nil {
		return nil, err
	}

	entry := &dataKeyEntry{
		keyID:      c.keyID,
		plaintext:  plaintext,
		ciphertext: wrappedKey,
		createdAt:  time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheEntry(entry)
	return entry, nil
}

// cacheEntry inserts entry into the LRU, evicting the oldest slot past cap.
// Must be called with c.mu held.
func (c *CredentialEncryptor) cacheEntry(entry *dataKeyEntry) string {
	fp := SHA256Hex(entry.ciphertext)
	el := c.order.PushFront(entry)
	c.entries[fp] = el
	for c.order.Len() > c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(*dataKeyEntry)
		// zero the plaintext before dropping the reference.
		for i := range old.plaintext {
			old.plaintext[i] = 0
		}
		c.order.Remove(oldest)
		delete(c.entries, SHA256Hex(old.ciphertext))
	}
	return fp
}

// envelopeSep joins the base64-encoded wrapped data key to the AEAD
// ciphertext it sealed the plaintext under, so Decrypt can recover the
// exact key a value was encrypted with instead of assuming whatever is
// current. Neither half's base64 alphabet produces this character.
const envelopeSep = "."

// Encrypt performs AEAD encryption of plaintext with the current data key
// and binds the KMS-wrapped copy of that key into the output, so Decrypt
// does not depend on the key still being the "current" cache entry.
func (c *CredentialEncryptor) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	entry, err := c.acquireDataKey(ctx)
	if err != nil {
		return "", err
	}
	sealed, err := SealAESGCM(entry.plaintext, plaintext)
	if err != nil {
		return "", err
	}
	wrapped := base64.StdEncoding.EncodeToString(entry.ciphertext)
	return wrapped + envelopeSep + sealed, nil
}

// Decrypt reverses Encrypt. It resolves the data key bound into the
// envelope — via cache, or a KMS Unwrap on a cache miss — so values
// encrypted under a previous key survive TTL expiry or RotateKeys. Any
// tamper or wrong-key condition returns apperr.KindCryptoTampered without
// further detail (spec.md §4.3).
func (c *CredentialEncryptor) Decrypt(ctx context.Context, ciphertext string) ([]byte, error) {
	wrapped, sealed, ok := strings.Cut(ciphertext, envelopeSep)
	if !ok {
		return nil, apperr.New(apperr.KindCryptoTampered, "ciphertext is missing its wrapped data key")
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, apperr.New(apperr.KindCryptoTampered, "wrapped data key is not valid base64")
	}

	entry, err := c.resolveDataKey(ctx, wrappedKey)
	if err != nil {
		return nil, err
	}
	return OpenAESGCM(entry.plaintext, sealed)
}

// EncryptField is a pass-through for an absent (nil) value, otherwise
// identical to Encrypt — spec.md §4.3's encryptField/decryptField.
func (c *CredentialEncryptor) EncryptField(ctx context.Context, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	ct, err := c.Encrypt(ctx, []byte(*value))
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

// DecryptField reverses EncryptField.
func (c *CredentialEncryptor) DecryptField(ctx context.Context, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	pt, err := c.Decrypt(ctx, *value)
	if err != nil {
		return nil, err
	}
	s := string(pt)
	return &s, nil
}

// GenerateHash and VerifyHash provide integrity-only (non-secret) hashing,
// spec.md §4.3.
func (c *CredentialEncryptor) GenerateHash(data []byte) string { return SHA256Hex(data) }

func (c *CredentialEncryptor) VerifyHash(data []byte, expected string) bool {
	return ConstantTimeEqual(SHA256Hex(data), expected)
}

// RotateKeys forces the next Encrypt to fetch fresh key material from KMS.
// Existing cache entries are left intact (ciphertext produced under them
// stays decryptable straight from cache); only c.current is cleared so
// acquireDataKey can no longer mistake the outgoing key for the live one.
// Decrypt can still resolve any rotated-away entry once it ages out of the
// LRU, via resolveDataKey's Unwrap fallback.
func (c *CredentialEncryptor) RotateKeys() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
	c.logger.Info("credential encryption keys rotated")
}

// HealthCheck encrypts a random string, decrypts it, and compares, per
// spec.md §4.3's health-check contract.
func (c *CredentialEncryptor) HealthCheck(ctx context.Context) error {
	probe, err := SecureToken(16)
	if err != nil {
		return err
	}
	ct, err := c.Encrypt(ctx, []byte(probe))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "health check encrypt failed", err)
	}
	pt, err := c.Decrypt(ctx, ct)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "health check decrypt failed", err)
	}
	if string(pt) != probe {
		return apperr.New(apperr.KindInternal, "health check round-trip mismatch")
	}
	return nil
}

// Unwrap decrypts a KMS-ciphertext data key blob directly via KMS Decrypt,
// used by resolveDataKey when an envelope's data key is not in the cache.
func (c *CredentialEncryptor) Unwrap(ctx context.Context, ciphertextBlob []byte) ([]byte, error) {
	out, err := breaker.Execute(ctx, c.breakers, breaker.KMS, func(ctx context.Context) (*kms.DecryptOutput, error) {
		return c.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: ciphertextBlob, KeyId: &c.keyID})
	})
	if err != nil {
		return nil, err
	}
	return out.Plaintext, nil
}
