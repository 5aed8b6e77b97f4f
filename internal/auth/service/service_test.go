package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openphotolib/photolib/internal/auth/domain"
	"github.com/openphotolib/photolib/internal/auth/registry"
	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/internal/auth/store/drivers/sqlite"
	"github.com/openphotolib/photolib/pkg/jwtx"
)

const (
	testClientID     = "c1"
	testClientSecret = "c1-secret"
	testRedirectURI  = "https://app/cb"
	testEmail        = "ada@example.com"
	testPassword     = "correct horse battery staple"
)

type testEnv struct {
	store     store.Store
	registry  *registry.Registry
	users     *UserService
	authorize *AuthorizeService
	tokens    *TokenService
	user      domain.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New()
	require.NoError(t, reg.Register(domain.Client{
		ID:           testClientID,
		Name:         "Frontend",
		Secret:       testClientSecret,
		RedirectURIs: []string{testRedirectURI},
	}))

	signer, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "photolib")
	require.NoError(t, err)

	env := &testEnv{
		store:     st,
		registry:  reg,
		users:     &UserService{Store: st},
		authorize: &AuthorizeService{Store: st, Registry: reg},
		tokens: &TokenService{
			Store:     st,
			Registry:  reg,
			Signer:    signer,
			Verifier:  signer,
			Issuer:    "photolib",
			AccessTTL: time.Hour,
		},
	}

	env.user, err = env.users.Create(context.Background(), CreateUserParams{
		Email:     testEmail,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	return env
}

func validAuthorizeRequest() AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType: "code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		Scope:        []string{"openid", "library:read"},
		State:        "xyzzy",
	}
}

// issueCode runs the full authorize POST for the default user.
func (e *testEnv) issueCode(t *testing.T) string {
	t.Helper()

	resp, err := e.authorize.Login(context.Background(), validAuthorizeRequest(),
		testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	return resp.Code
}
