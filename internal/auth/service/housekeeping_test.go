package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/pkg/cryptox"
)

func TestHousekeepingPurgesExpiredCodes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	// One live code, one expired.
	live := env.issueCode(t)
	short := &AuthorizeService{Store: env.store, Registry: env.registry, CodeTTL: -time.Minute}
	expired, err := short.Login(ctx, validAuthorizeRequest(), testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	hk := NewHousekeepingService(env.store, slog.Default(), time.Hour, time.Hour)
	hk.Cleanup(ctx)

	_, err = env.store.AuthorizationCodes().
		GetAuthorizationCodeByHash(ctx, cryptox.FingerprintToken(expired.Code))
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.store.AuthorizationCodes().
		GetAuthorizationCodeByHash(ctx, cryptox.FingerprintToken(live))
	require.NoError(t, err)

	// The live code still exchanges after cleanup.
	_, err = env.tokens.ExchangeAuthorizationCode(ctx, testClientID, live, testRedirectURI)
	require.NoError(t, err)
}

func TestHousekeepingKeepsFreshTokens(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	pair, err := env.tokens.ExchangeAuthorizationCode(ctx, testClientID, env.issueCode(t), testRedirectURI)
	require.NoError(t, err)

	hk := NewHousekeepingService(env.store, slog.Default(), time.Hour, 30*24*time.Hour)
	hk.Cleanup(ctx)

	_, err = env.tokens.Resolve(ctx, pair.AccessToken)
	require.NoError(t, err)
}
