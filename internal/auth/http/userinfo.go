package http

import (
	"net/http"

	"github.com/openphotolib/photolib/internal/auth/service"
	"github.com/openphotolib/photolib/pkg/httpx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// UserInfoResponse is the payload of GET /api/v1/me.
type UserInfoResponse struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstname,omitempty"`
	LastName  string   `json:"lastname,omitempty"`
	Admin     bool     `json:"admin"`
	Scopes    []string `json:"scopes"`
}

type UserInfoHandler struct {
	UserService *service.UserService
}

// ServeHTTP godoc
//
//	@Summary		Get user information
//	@Description	Returns information about the authenticated user. Requires the 'profile' scope.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	UserInfoResponse	"User information"
//	@Failure		401	{object}	map[string]string	"Invalid or missing access token"
//	@Failure		500	{object}	map[string]string	"Internal server error"
//	@Router			/api/v1/me [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromCtx(ctx)
	if !ok || userID == "" {
		ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.UserService.Get(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		ErrServerError.WriteError(w)
		return
	}

	response := UserInfoResponse{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Admin:     user.Admin,
		Scopes:    httpx.ScopesFromCtx(ctx),
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}
