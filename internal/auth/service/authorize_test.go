package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/pkg/cryptox"
)

func TestValidateRequestOrderOfChecks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("missing response_type", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.ResponseType = ""
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("missing client_id", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.ClientID = ""
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown client", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.ClientID = "nobody"
		// Bad response_type too, but the unknown client is reported first
		// for anything except a missing parameter.
		req.ResponseType = "token"
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrUnauthorizedClient)
	})

	t.Run("unsupported response_type", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.ResponseType = "token"
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrUnsupportedResponseType)
	})

	t.Run("missing redirect_uri", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.RedirectURI = ""
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrUnauthorizedClient)
	})

	t.Run("redirect_uri not allow-listed", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.RedirectURI = testRedirectURI + "/extra"
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrUnauthorizedClient)
	})

	t.Run("missing scope", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.Scope = nil
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("unregistered scope", func(t *testing.T) {
		req := validAuthorizeRequest()
		req.Scope = []string{"openid", "fridge:defrost"}
		_, err := env.authorize.ValidateRequest(ctx, req)
		require.ErrorIs(t, err, ErrInvalidScope)
	})
}

func TestValidateRequestConsentPayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	consent, err := env.authorize.ValidateRequest(context.Background(), validAuthorizeRequest())
	require.NoError(t, err)
	require.Equal(t, "Frontend", consent.ClientName)
	require.Equal(t, "xyzzy", consent.State)
	require.Len(t, consent.Scopes, 2)
	require.Equal(t, "openid", consent.Scopes[0].Scope)
	require.NotEmpty(t, consent.Scopes[0].Description)
	require.Equal(t, "library:read", consent.Scopes[1].Scope)
}

func TestLoginIssuesCode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.authorize.Login(ctx, validAuthorizeRequest(), testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, testRedirectURI, resp.RedirectURI)
	require.Equal(t, "xyzzy", resp.State)

	// Code is a uuid.
	_, err = uuid.Parse(resp.Code)
	require.NoError(t, err)

	// The persisted record holds the fingerprint, never the value.
	record, err := env.store.AuthorizationCodes().
		GetAuthorizationCodeByHash(ctx, cryptox.FingerprintToken(resp.Code))
	require.NoError(t, err)
	require.Equal(t, env.user.ID, record.UserID)
	require.Equal(t, []string{"openid", "library:read"}, record.Scopes)
	require.False(t, record.Used)

	// Side effect: last login stamped with the origin.
	user, err := env.store.Users().GetUserByID(ctx, env.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastLogin)
	require.Equal(t, "10.0.0.1", user.LastIP)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.authorize.Login(ctx, validAuthorizeRequest(), testEmail, "wrong", "10.0.0.1")
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = env.authorize.Login(ctx, validAuthorizeRequest(), "nobody@example.com", testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = env.authorize.Login(ctx, validAuthorizeRequest(), "", "", "10.0.0.1")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestLoginRejectsDisabledUserWithCorrectPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.users.Disable(ctx, env.user.ID))

	_, err := env.authorize.Login(ctx, validAuthorizeRequest(), testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestLoginRevalidatesRequest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	req := validAuthorizeRequest()
	req.RedirectURI = "https://evil.example.com/cb"
	_, err := env.authorize.Login(context.Background(), req, testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrUnauthorizedClient)
}

// brokenTxStore delegates reads to the wrapped store but fails every
// transaction, simulating storage trouble after the credential check.
type brokenTxStore struct {
	store.Store
}

func (b *brokenTxStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return errors.New("database is locked")
}

func TestLoginStoreFailureIsCodeIssuance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	authorize := &AuthorizeService{
		Store:    &brokenTxStore{Store: env.store},
		Registry: env.registry,
	}

	_, err := authorize.Login(context.Background(), validAuthorizeRequest(),
		testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrCodeIssuance)
}
