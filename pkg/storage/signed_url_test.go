package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	signed, err := signer.Generate("enr-1", "2024/CERT-1-abc.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, signed.Token)

	parsed, err := signer.Parse(signed.Token)
	require.NoError(t, err)
	require.Equal(t, "enr-1", parsed.ResourceID)
	require.Equal(t, "2024/CERT-1-abc.pdf", parsed.Path)
	require.WithinDuration(t, signed.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	base := time.Now()
	signer.now = func() time.Time { return base }
	signed, err := signer.Generate("enr-1", "file.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = signer.Parse(signed.Token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	signed, err := signer.Generate("enr-1", "file.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, err = other.Parse(signed.Token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = signer.Parse("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}
