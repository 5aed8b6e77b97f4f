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

// AuthorizeHandler processes OAuth2 authorization requests (authorization
// code flow).
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	BanList          *httpx.BanList
}

// HandleGet godoc
//
//	@Summary		OAuth2 authorization endpoint (GET)
//	@Description	Validates an authorization request and returns the consent payload to display to the resource owner.
//	@Description	No state is persisted between this request and the credential POST.
//	@Tags			OAuth2
//	@Produce		json
//	@Param			response_type	query		string					true	"Must be 'code'"	default(code)
//	@Param			client_id		query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri	query		string					true	"Callback URI (must match a registered redirect URI)"
//	@Param			scope			query		string					true	"Space-delimited list of scopes"	example("openid library:read")
//	@Param			state			query		string					false	"Opaque value echoed back on the redirect (CSRF mitigation)"
//	@Success		200				{object}	service.Consent			"client_name, client_id, redirect_uri, scopes, state"
//	@Failure		400				{object}	map[string]string		"error, error_description"
//	@Router			/oauth/authorize [get]
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req := buildAuthorizeRequest(r.URL.Query())

	consent, err := h.AuthorizeService.ValidateRequest(r.Context(), req)
	if err != nil {
		writeAuthorizeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, consent)
}

// HandlePost godoc
//
//	@Summary		OAuth2 authorization endpoint (POST)
//	@Description	Verifies the resource owner's credentials and redirects back to the client.
//	@Description	Success: 302 to redirect_uri with code and state. Bad credentials or a failed code issuance: 302 with error=access_denied and state.
//	@Description	Validation failures never redirect; they answer with a JSON error body.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			response_type	query		string				true	"Must be 'code'"	default(code)
//	@Param			client_id		query		string				true	"OAuth2 client identifier"
//	@Param			redirect_uri	query		string				true	"Callback URI (must match a registered redirect URI)"
//	@Param			scope			query		string				true	"Space-delimited list of scopes"
//	@Param			state			query		string				false	"Opaque value echoed back on the redirect"
//	@Param			email			formData	string				true	"Resource owner email"
//	@Param			password		formData	string				true	"Resource owner password"
//	@Success		302				{string}	string				"Redirect to redirect_uri with code and state"
//	@Failure		400				{object}	map[string]string	"error, error_description"
//	@Router			/oauth/authorize [post]
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		ErrInvalidFormBody.WriteError(w)
		return
	}

	// The flow parameters ride on the query string; the form body carries
	// only the credentials.
	req := buildAuthorizeRequest(r.URL.Query())
	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")
	origin := httpx.IPKeyExtractor(r)

	resp, err := h.AuthorizeService.Login(ctx, req, email, password, origin)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccessDenied):
			h.recordFailure(r, origin)
			// The request itself validated, so the error may ride the
			// redirect channel with the state echoed verbatim.
			http.Redirect(w, r, errorRedirect(req.RedirectURI, ErrorCodeAccessDenied, req.State), http.StatusFound)
		case errors.Is(err, service.ErrCodeIssuance):
			// Storage trouble after a successful credential check. Still a
			// redirect, but it is not a login failure, so the ban counter
			// stays untouched.
			http.Redirect(w, r, errorRedirect(req.RedirectURI, ErrorCodeAccessDenied, req.State), http.StatusFound)
		default:
			writeAuthorizeError(w, r, err)
		}
		return
	}

	h.resetFailures(r, origin)

	redirectURL, err := successRedirect(resp.RedirectURI, resp.Code, resp.State)
	if err != nil {
		log.Error("failed to build redirect URL", "err", err)
		ErrServerError.WriteError(w)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (h *AuthorizeHandler) recordFailure(r *http.Request, origin string) {
	if h.BanList == nil {
		return
	}
	banned, err := h.BanList.RecordFailure(r.Context(), origin)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to record login failure", "err", err)
		return
	}
	if banned {
		slogx.FromContext(r.Context()).Warn("origin banned after repeated login failures", "ip", origin)
	}
}

func (h *AuthorizeHandler) resetFailures(r *http.Request, origin string) {
	if h.BanList == nil {
		return
	}
	if err := h.BanList.Reset(r.Context(), origin); err != nil {
		slogx.FromContext(r.Context()).Error("failed to reset login failures", "err", err)
	}
}

func buildAuthorizeRequest(query url.Values) service.AuthorizeRequest {
	return service.AuthorizeRequest{
		ResponseType: strings.TrimSpace(query.Get("response_type")),
		ClientID:     strings.TrimSpace(query.Get("client_id")),
		RedirectURI:  strings.TrimSpace(query.Get("redirect_uri")),
		Scope:        httpx.ParseSpaceDelimitedFields(query.Get("scope")),
		State:        query.Get("state"),
	}
}

// writeAuthorizeError maps a validation failure onto the OAuth2 error
// vocabulary. These never redirect; the redirect_uri is not trusted at
// this point. Unexpected failures collapse into server_error, the
// authorize channel must not leak a raw 500 body.
func writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		ErrInvalidRequest.WriteError(w)
	case errors.Is(err, service.ErrUnauthorizedClient):
		ErrUnauthorizedClient.WriteError(w)
	case errors.Is(err, service.ErrUnsupportedResponseType):
		ErrUnsupportedResponseType.WriteError(w)
	case errors.Is(err, service.ErrInvalidScope):
		ErrInvalidScope.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("authorize request failed", "err", err)
		ErrServerError.WriteError(w)
	}
}

// successRedirect builds the redirect URL carrying the authorization code
// and, when present, the verbatim state.
func successRedirect(baseURI, code, state string) (string, error) {
	u, err := url.Parse(baseURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// errorRedirect builds the redirect URL for a denied authorization. The
// redirect_uri was validated against the allow-list before this point.
func errorRedirect(baseURI, errorCode, state string) string {
	u, err := url.Parse(baseURI)
	if err != nil {
		return baseURI
	}

	q := u.Query()
	q.Set("error", errorCode)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
