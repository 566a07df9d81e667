package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *Service {
	keys := NewKeySet("kid-1", map[string][]byte{"kid-1": []byte("test-signing-secret")})
	cfg := Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, Issuer: "authcore-test"}
	return New(keys, cfg, NewMemoryRevocationStore())
}

func TestIssueAndValidate(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user-1", "fingerprint-A")
	require.NoError(t, err)

	claims, err := svc.Validate(ctx, pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, KindAccess, claims.Kind)
}

func TestValidateRejectsMismatchedKind(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user-1", "fingerprint-A")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, pair.RefreshToken, KindAccess)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user-1", "fingerprint-A")
	require.NoError(t, err)

	newPair, err := svc.Refresh(ctx, pair.RefreshToken, "fingerprint-A")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	_, err = svc.Refresh(ctx, pair.RefreshToken, "fingerprint-A")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestRefreshDetectsDeviceMismatch(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user-1", "fingerprint-A")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.RefreshToken, "fingerprint-B")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceMismatch)
}

// Refresh runs Validate with KindRefresh, so presenting an access token for
// refresh exercises Validate's kind check and fails with ErrWrongKind.
func TestValidateRejectsWrongKind(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user-1", "fingerprint-A")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken, "fingerprint-A")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongKind)
}
