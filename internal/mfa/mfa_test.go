package mfa

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCodeAcceptsCurrentStepThenRejectsReplay(t *testing.T) {
	svc := &Service{issuer: "authcore-test", replay: NewMemoryReplayStore()}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "authcore-test", AccountName: "alice@example.com"})
	require.NoError(t, err)

	code, err := totp.GenerateCodeCustom(key.Secret(), time.Now(), totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	ok, err := svc.ValidateCode(context.Background(), "user-1", code, key.Secret())
	require.NoError(t, err)
	assert.True(t, ok)

	// replay of the same code must fail.
	ok, err = svc.ValidateCode(context.Background(), "user-1", code, key.Secret())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateBackupCodesFormat(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	assert.Len(t, codes, 10)
	for _, c := range codes {
		assert.Len(t, c, 9) // XXXX-XXXX
		assert.Equal(t, byte('-'), c[4])
	}
}
