package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/openphotolib/photolib/internal/auth/service"
	"github.com/openphotolib/photolib/pkg/httpx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// TokenHandler serves POST /oauth/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues access and refresh tokens using OAuth2 grant types (authorization_code, refresh_token).
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string				true	"Grant type"	Enums(authorization_code, refresh_token)
//	@Param			code			formData	string				false	"Authorization code (required for authorization_code grant)"
//	@Param			redirect_uri	formData	string				false	"Redirect URI (required for authorization_code grant)"
//	@Param			client_id		formData	string				true	"Client identifier"
//	@Param			client_secret	formData	string				false	"Client secret (refresh grant; HTTP Basic is accepted instead)"
//	@Param			refresh_token	formData	string				false	"Refresh token (required for refresh_token grant)"
//	@Success		200				{object}	domain.TokenPair	"access_token, refresh_token, token_type, expires_in, scope"
//	@Failure		400				{object}	map[string]string	"error, error_description"
//	@Failure		401				{object}	map[string]string	"error, error_description"
//	@Failure		403				{object}	map[string]string	"error, error_description"
//	@Header			200				{string}	Cache-Control		"no-store"
//	@Header			200				{string}	Pragma				"no-cache"
//	@Router			/oauth/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Handle the grant type. Anything unknown or missing is a plain
	// invalid_request.
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		ErrInvalidRequest.WriteError(w)
	}
}

func (h *TokenHandler) handleAuthorizationCodeGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code := strings.TrimSpace(form.Get("code"))
	redirectURI := strings.TrimSpace(form.Get("redirect_uri"))
	clientID := strings.TrimSpace(form.Get("client_id"))

	if code == "" || redirectURI == "" || clientID == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeAuthorizationCode(ctx, clientID, code, redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			ErrInvalidRequest.WriteError(w)
		case errors.Is(err, service.ErrInvalidClient):
			ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidGrant):
			ErrInvalidGrant.WriteError(w)
		default:
			log.Error("authorization_code grant failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := form.Get("refresh_token")
	if refresh == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	clientID, clientSecret, ok := clientCredentials(r, form)
	if !ok {
		ErrInvalidClient.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeRefreshToken(ctx, clientID, clientSecret, refresh)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			ErrInvalidRequest.WriteError(w)
		case errors.Is(err, service.ErrInvalidClient):
			ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidRefresh):
			ErrInvalidRefresh.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// clientCredentials reads the client authentication from the form body or,
// failing that, from an HTTP Basic header (RFC 6749 section 2.3.1).
func clientCredentials(r *http.Request, form url.Values) (clientID, clientSecret string, ok bool) {
	clientID = strings.TrimSpace(form.Get("client_id"))
	clientSecret = form.Get("client_secret")
	if clientID != "" && clientSecret != "" {
		return clientID, clientSecret, true
	}

	basicID, basicSecret, hasBasic := r.BasicAuth()
	if !hasBasic {
		return "", "", false
	}

	// Basic credentials are form-urlencoded before base64 per the RFC.
	if id, err := url.QueryUnescape(basicID); err == nil {
		basicID = id
	}
	if secret, err := url.QueryUnescape(basicSecret); err == nil {
		basicSecret = secret
	}
	return basicID, basicSecret, basicID != ""
}
