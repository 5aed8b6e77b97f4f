package http

import (
	"net/http"
	"strings"

	"github.com/openphotolib/photolib/internal/auth/service"
	"github.com/openphotolib/photolib/pkg/httpx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// RevokeHandler serves POST /revoke following RFC 7009. The submitted
// value is matched against access and refresh fingerprints alike, and all
// tokens even if invalid/unknown return 200 OK to prevent token scanning
// attacks. The route itself sits behind the Gate.
type RevokeHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Revocation Endpoint
//	@Description	Revokes a previously issued token (RFC 7009). Matches by access or refresh token.
//	@Description	The endpoint is idempotent and returns 200 OK even for invalid/unknown tokens to prevent token scanning attacks.
//	@Tags			OAuth2
//	@Security		BearerAuth
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token	formData	string	true	"The token to revoke"
//	@Success		200		"Token revoked (or was already invalid)"
//	@Failure		400		{object}	map[string]string	"error, error_description"
//	@Failure		401		{object}	map[string]string	"error, error_description"
//	@Header			200		{string}	Cache-Control		"no-store"
//	@Header			200		{string}	Pragma				"no-cache"
//	@Router			/revoke [post]
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	token := r.Form.Get("token")
	if token == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	// Per RFC 7009 the response is 200 OK whether or not anything matched.
	if _, err := h.TokenService.Revoke(ctx, token); err != nil {
		log.Warn("revoke failed", "err", err)
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
