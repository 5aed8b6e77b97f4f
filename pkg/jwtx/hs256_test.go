package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewHS256RejectsShortSecrets(t *testing.T) {
	t.Parallel()

	_, err := NewHS256([]byte("too short"), "photolib")
	require.Error(t, err)
}

func TestHS256SignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	h, err := NewHS256(testSecret(), "photolib")
	require.NoError(t, err)

	now := time.Now().UTC()
	claims := NewAccessClaims(
		"01J0USER", []string{"openid", "library:read"},
		time.Hour, "photolib", "user@example.com", now,
	)

	token, err := h.Sign(claims)
	require.NoError(t, err)

	got, err := h.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "01J0USER", got.Subject)
	require.Equal(t, []string{"openid", "library:read"}, got.Scopes)
	require.Equal(t, "user@example.com", got.Email)
	require.Equal(t, claims.ID, got.ID)
}

func TestHS256VerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	signer, err := NewHS256(testSecret(), "photolib")
	require.NoError(t, err)
	verifier, err := NewHS256([]byte("another-secret-another-secret-00"), "photolib")
	require.NoError(t, err)

	token, err := signer.Sign(NewAccessClaims(
		"sub", nil, time.Hour, "photolib", "", time.Now().UTC(),
	))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestHS256VerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	h, err := NewHS256(testSecret(), "photolib")
	require.NoError(t, err)

	issued := time.Now().UTC().Add(-2 * time.Hour)
	token, err := h.Sign(NewAccessClaims("sub", nil, time.Hour, "photolib", "", issued))
	require.NoError(t, err)

	_, err = h.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestHS256VerifyRejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	h, err := NewHS256(testSecret(), "photolib")
	require.NoError(t, err)

	token, err := h.Sign(NewAccessClaims("sub", nil, time.Hour, "someone-else", "", time.Now().UTC()))
	require.NoError(t, err)

	_, err = h.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestHS256VerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	h, err := NewHS256(testSecret(), "photolib")
	require.NoError(t, err)

	for _, in := range []string{"", "abc", "a.b.c"} {
		_, err := h.Verify(in)
		require.Error(t, err)
	}
}

func TestValidateExpiryHalfOpenInterval(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	claims := NewAccessClaims("sub", nil, time.Hour, "photolib", "", now)

	require.NoError(t, claims.ValidateExpiry(now))
	require.NoError(t, claims.ValidateExpiry(now.Add(time.Hour-time.Second)))
	require.ErrorIs(t, claims.ValidateExpiry(now.Add(time.Hour)), ErrExpired)
	require.ErrorIs(t, claims.ValidateExpiry(now.Add(-time.Minute)), ErrNotYetValid)
}
