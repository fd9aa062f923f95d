package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("gatepasses/gp-1.pdf", 0)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	ref, parsedExpiry, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "gatepasses/gp-1.pdf", ref)
	require.Equal(t, expiresAt.Unix(), parsedExpiry.Unix())
}

func TestSignedURLSignerPerCallTTL(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	base := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return base }

	token, expiresAt, err := signer.Sign("a.pdf", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, base.Add(5*time.Minute), expiresAt)

	signer.now = func() time.Time { return base.Add(6 * time.Minute) }
	_, _, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("a.pdf", 0)
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, _, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = signer.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = NewSignedURLSigner("", time.Hour).Sign("a.pdf", 0)
	require.Error(t, err)
}
