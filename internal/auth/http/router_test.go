package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openphotolib/photolib/internal/auth/domain"
	authhttp "github.com/openphotolib/photolib/internal/auth/http"
	"github.com/openphotolib/photolib/internal/auth/registry"
	"github.com/openphotolib/photolib/internal/auth/service"
	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/internal/auth/store/drivers/sqlite"
	"github.com/openphotolib/photolib/pkg/httpx"
	"github.com/openphotolib/photolib/pkg/jwtx"
	"github.com/openphotolib/photolib/pkg/kv"
	"github.com/openphotolib/photolib/pkg/slogx"
)

const (
	testClientID     = "c1"
	testClientSecret = "c1-secret"
	testRedirectURI  = "https://app/cb"
	testEmail        = "ada@example.com"
	testPassword     = "correct horse battery staple"
)

type testServer struct {
	*httptest.Server

	client *http.Client
	router *authhttp.Router
	userID string
}

func newTestServer(t *testing.T) *testServer {
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

	users := &service.UserService{Store: st}
	user, err := users.Create(t.Context(), service.CreateUserParams{
		Email:     testEmail,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	router := authhttp.NewRouter("test", st, slogx.New(slogx.Config{Level: "error"}))
	router.AuthorizeService = &service.AuthorizeService{Store: st, Registry: reg}
	router.TokenService = &service.TokenService{
		Store:     st,
		Registry:  reg,
		Signer:    signer,
		Verifier:  signer,
		Issuer:    "photolib",
		AccessTTL: time.Hour,
	}
	router.UserService = users
	router.BanList = httpx.NewBanList(kv.NewMemory(), httpx.DefaultBanThreshold, time.Hour)
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testServer{Server: srv, client: client, router: router, userID: user.ID}
}

func authorizeQuery(scope string) url.Values {
	return url.Values{
		"response_type": {"code"},
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"scope":         {scope},
		"state":         {"xyzzy"},
	}
}

// login drives POST /oauth/authorize and returns the response unread.
func (ts *testServer) login(t *testing.T, query url.Values, email, password, ip string) *http.Response {
	t.Helper()

	form := url.Values{"email": {email}, "password": {password}}
	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/oauth/authorize?"+query.Encode(),
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}

	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	return resp
}

// issueCode runs the full authorize POST and extracts the code from the
// redirect.
func (ts *testServer) issueCode(t *testing.T, scope string) string {
	t.Helper()

	resp := ts.login(t, authorizeQuery(scope), testEmail, testPassword, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (ts *testServer) postToken(t *testing.T, form url.Values, basicAuth bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/oauth/token",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(testClientID, testClientSecret)
	}

	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) exchange(t *testing.T, code string) domain.TokenPair {
	t.Helper()

	resp := ts.postToken(t, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {testRedirectURI},
		"client_id":    {testClientID},
	}, false)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair domain.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	return pair
}

func decodeError(t *testing.T, body io.Reader) string {
	t.Helper()

	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&payload))
	return payload.Error
}

func TestAuthorizeGetRendersConsent(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := ts.client.Get(ts.URL + "/oauth/authorize?" + authorizeQuery("openid").Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var consent service.Consent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&consent))
	require.Equal(t, "Frontend", consent.ClientName)
	require.Equal(t, "xyzzy", consent.State)
	require.Len(t, consent.Scopes, 1)
	require.Equal(t, "openid", consent.Scopes[0].Scope)
	require.NotEmpty(t, consent.Scopes[0].Description)
}

func TestAuthorizeGetErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	cases := []struct {
		name       string
		mutate     func(url.Values)
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing client_id",
			mutate:     func(q url.Values) { q.Del("client_id") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "unknown client",
			mutate:     func(q url.Values) { q.Set("client_id", "nobody") },
			wantStatus: http.StatusBadRequest,
			wantError:  "unauthorized_client",
		},
		{
			name:       "wrong response_type",
			mutate:     func(q url.Values) { q.Set("response_type", "token") },
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_response_type",
		},
		{
			name:       "redirect_uri off allow-list",
			mutate:     func(q url.Values) { q.Set("redirect_uri", "https://evil/cb") },
			wantStatus: http.StatusBadRequest,
			wantError:  "unauthorized_client",
		},
		{
			name:       "unregistered scope",
			mutate:     func(q url.Values) { q.Set("scope", "fridge:defrost") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_scope",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query := authorizeQuery("openid")
			tc.mutate(query)

			resp, err := ts.client.Get(ts.URL + "/oauth/authorize?" + query.Encode())
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tc.wantStatus, resp.StatusCode)
			require.Equal(t, tc.wantError, decodeError(t, resp.Body))
		})
	}
}

func TestAuthorizePostRedirectsWithCode(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := ts.login(t, authorizeQuery("openid"), testEmail, testPassword, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "https", loc.Scheme)
	require.Equal(t, "/cb", loc.Path)
	require.Equal(t, "xyzzy", loc.Query().Get("state"))

	_, err = uuid.Parse(loc.Query().Get("code"))
	require.NoError(t, err)
}

func TestAuthorizePostBadCredentialsRedirectsAccessDenied(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := ts.login(t, authorizeQuery("openid"), testEmail, "wrong", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Equal(t, "xyzzy", loc.Query().Get("state"))
	require.Empty(t, loc.Query().Get("code"))
}

// brokenStore delegates reads but fails every transaction, so code
// issuance breaks while the credential check still passes.
type brokenStore struct {
	store.Store
}

func (b *brokenStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return errors.New("database is locked")
}

func TestAuthorizePostIssuanceFailureRedirectsAccessDenied(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.router.AuthorizeService.Store = &brokenStore{Store: ts.router.AuthorizeService.Store}

	resp := ts.login(t, authorizeQuery("openid"), testEmail, testPassword, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/cb", loc.Path)
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Equal(t, "xyzzy", loc.Query().Get("state"))
	require.Empty(t, loc.Query().Get("code"))
}

func TestTokenExchange(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	code := ts.issueCode(t, "openid library:read")

	pair := ts.exchange(t, code)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(3600), pair.ExpiresIn)
	require.Equal(t, "openid library:read", pair.Scope)
}

func TestTokenExchangeReplayRejected(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	code := ts.issueCode(t, "openid")
	ts.exchange(t, code)

	resp := ts.postToken(t, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {testRedirectURI},
		"client_id":    {testClientID},
	}, false)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", decodeError(t, resp.Body))
}

func TestTokenEndpointErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	t.Run("missing grant_type", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{}, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decodeError(t, resp.Body))
	})

	t.Run("unknown grant_type", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{"grant_type": {"password"}}, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decodeError(t, resp.Body))
	})

	t.Run("missing code", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{
			"grant_type":   {"authorization_code"},
			"redirect_uri": {testRedirectURI},
			"client_id":    {testClientID},
		}, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decodeError(t, resp.Body))
	})

	t.Run("unknown code", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {"never-issued"},
			"redirect_uri": {testRedirectURI},
			"client_id":    {testClientID},
		}, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_grant", decodeError(t, resp.Body))
	})
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	first := ts.exchange(t, ts.issueCode(t, "openid"))

	resp := ts.postToken(t, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}, false)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second domain.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-away refresh token is dead.
	replay := ts.postToken(t, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}, false)
	defer replay.Body.Close()
	require.Equal(t, http.StatusForbidden, replay.StatusCode)
	require.Equal(t, "invalid_grant", decodeError(t, replay.Body))
}

func TestRefreshClientAuthentication(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	pair := ts.exchange(t, ts.issueCode(t, "openid"))

	t.Run("wrong secret", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {pair.RefreshToken},
			"client_id":     {testClientID},
			"client_secret": {"nope"},
		}, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", decodeError(t, resp.Body))
	})

	t.Run("no credentials at all", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {pair.RefreshToken},
		}, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", decodeError(t, resp.Body))
	})

	t.Run("http basic", func(t *testing.T) {
		resp := ts.postToken(t, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {pair.RefreshToken},
		}, true)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRevokeEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	pair := ts.exchange(t, ts.issueCode(t, "openid"))

	revoke := func(bearer, token string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/revoke",
			strings.NewReader(url.Values{"token": {token}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := ts.client.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("requires bearer auth", func(t *testing.T) {
		resp := revoke("", pair.RefreshToken)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown token still answers 200", func(t *testing.T) {
		resp := revoke(pair.AccessToken, "never-issued")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.JSONEq(t, "{}", string(body))
	})

	t.Run("revoking own access token kills the pair", func(t *testing.T) {
		resp := revoke(pair.AccessToken, pair.AccessToken)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// The revoked token no longer authenticates.
		again := revoke(pair.AccessToken, pair.AccessToken)
		defer again.Body.Close()
		require.Equal(t, http.StatusUnauthorized, again.StatusCode)
	})
}

func TestUserInfoEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	me := func(bearer string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/me", nil)
		require.NoError(t, err)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := ts.client.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("no token", func(t *testing.T) {
		resp := me("")
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("with profile scope", func(t *testing.T) {
		pair := ts.exchange(t, ts.issueCode(t, "openid profile"))

		resp := me(pair.AccessToken)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var info authhttp.UserInfoResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		require.Equal(t, ts.userID, info.UserID)
		require.Equal(t, testEmail, info.Email)
		require.Contains(t, info.Scopes, "profile")
	})

	t.Run("missing scope", func(t *testing.T) {
		pair := ts.exchange(t, ts.issueCode(t, "openid"))

		resp := me(pair.AccessToken)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), "insufficient_scope")
	})
}

func TestBanAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	const attacker = "203.0.113.7"

	// Three failures hit the threshold.
	for range 3 {
		resp := ts.login(t, authorizeQuery("openid"), testEmail, "wrong", attacker)
		resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)
	}

	// The fourth attempt is rejected outright, correct credentials or not.
	resp := ts.login(t, authorizeQuery("openid"), testEmail, testPassword, attacker)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "access_denied", decodeError(t, resp.Body))

	// Every other endpoint is closed to the banned origin too.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/livez", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", attacker)
	banned, err := ts.client.Do(req)
	require.NoError(t, err)
	defer banned.Body.Close()
	require.Equal(t, http.StatusForbidden, banned.StatusCode)

	// Other origins are unaffected.
	ok := ts.login(t, authorizeQuery("openid"), testEmail, testPassword, "198.51.100.9")
	defer ok.Body.Close()
	require.Equal(t, http.StatusFound, ok.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := ts.client.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health authhttp.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		require.Equal(t, "ok", health.Status)
	}
}

func TestSwaggerDocServed(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := ts.client.Get(ts.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Swagger string                     `json:"swagger"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "2.0", doc.Swagger)
	require.Contains(t, doc.Paths, "/oauth/authorize")
	require.Contains(t, doc.Paths, "/oauth/token")
	require.Contains(t, doc.Paths, "/revoke")
}
