// Package mfa is the MFA service (C7): TOTP verification per RFC 6238,
// backup-code redemption, QR provisioning, and replay defence. Grounded on
// the teacher's internal/auth/mfa.go (MFAService, pquerna/otp usage,
// backup-code alphabet), generalised with a replay cache and secret
// encryption via cryptoutil.CredentialEncryptor, both of which the teacher
// never implemented.
package mfa

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/cryptoutil"
)

const (
	window     = 30 * time.Second
	skewSteps  = 1 // spec.md §4.5: current step ± one step
	backupCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // excludes I, O, 0, 1
)

// ReplayStore remembers (userID, step) pairs that already verified
// successfully, so the same code can't be replayed within 2×window.
type ReplayStore interface {
	SeenRecently(ctx context.Context, userID string, step int64) (bool, error)
	MarkSeen(ctx context.Context, userID string, step int64, ttl time.Duration) error
}

// Service is the MFA service (C7).
type Service struct {
	issuer   string
	secrets  *cryptoutil.CredentialEncryptor
	replay   ReplayStore
}

func New(issuer string, secrets *cryptoutil.CredentialEncryptor, replay ReplayStore) *Service {
	return &Service{issuer: issuer, secrets: secrets, replay: replay}
}

// EnrollmentMaterial is returned by GenerateSecret: the raw secret (for
// provisioning display only — callers must encrypt it via C5 before
// persisting), a QR code PNG, and the otpauth:// URI, per spec.md §4.5.
type EnrollmentMaterial struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
}

// GenerateSecret creates a fresh TOTP secret for accountEmail.
func (s *Service) GenerateSecret(accountEmail string) (*EnrollmentMaterial, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountEmail,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
		Period:      30,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "totp secret generation failed", err)
	}

	img, err := key.Image(256, 256)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "qr code generation failed", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "qr code encoding failed", err)
	}

	uri := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=30",
		s.issuer, accountEmail, key.Secret(), s.issuer)

	return &EnrollmentMaterial{
		Secret:          key.Secret(),
		ProvisioningURI: uri,
		QRCodePNG:       buf.Bytes(),
	}, nil
}

// ValidateCode checks code against secret at the current time step and
// adjacent steps (±window), then records the matched step in the replay
// store so the same code cannot be accepted twice within 2×window.
func (s *Service) ValidateCode(ctx context.Context, userID, code, secret string) (bool, error) {
	now := time.Now()
	for delta := -skewSteps; delta <= skewSteps; delta++ {
		t := now.Add(time.Duration(delta) * window)
		step := t.Unix() / int64(window.Seconds())
		ok, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
			Period:    30,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !ok {
			continue
		}
		seen, err := s.replay.SeenRecently(ctx, userID, step)
		if err != nil {
			return false, apperr.Wrap(apperr.KindInternal, "replay check failed", err)
		}
		if seen {
			return false, nil
		}
		if err := s.replay.MarkSeen(ctx, userID, step, 2*window); err != nil {
			return false, apperr.Wrap(apperr.KindInternal, "replay mark failed", err)
		}
		return true, nil
	}
	return false, nil
}

// GenerateBackupCodes returns n single-use codes formatted "XXXX-XXXX",
// matching the teacher's alphabet and grouping.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := randomBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func randomBackupCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "rng failure", err)
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = backupCodeCharset[int(b)%len(backupCodeCharset)]
	}
	return fmt.Sprintf("%s-%s", out[:4], out[4:]), nil
}
