package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/openphotolib/photolib/internal/auth/domain"
	"github.com/openphotolib/photolib/internal/auth/service"
	"github.com/openphotolib/photolib/pkg/httpx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// TokenResolver validates a bearer access token and returns the identity
// behind it. Satisfied by service.TokenService.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (service.Identity, error)
}

// Gate is the single choke point protected handlers sit behind. It
// extracts the bearer token, validates it against the store and loads the
// granted identity into the request context.
type Gate struct {
	Resolver TokenResolver
}

// CheckAuthorized resolves the request's bearer token to an identity.
// Returns service.ErrForbidden when the header is absent, malformed, uses
// a different scheme, or the token is invalid, expired or revoked.
func (g *Gate) CheckAuthorized(r *http.Request) (service.Identity, error) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		return service.Identity{}, service.ErrForbidden
	}
	return g.Resolver.Resolve(r.Context(), token)
}

// RequireAuth authenticates the request and stores the resolved identity
// in the context for the handler behind it.
func (g *Gate) RequireAuth() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := g.CheckAuthorized(r)
			if err != nil {
				if !errors.Is(err, service.ErrForbidden) {
					slogx.FromContext(r.Context()).Error("token resolution failed", "err", err)
					ErrServerError.WriteError(w)
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				ErrInvalidToken.WriteError(w)
				return
			}

			ctx := context.WithValue(r.Context(), httpx.CtxKeyUserID, ident.UserID)
			ctx = context.WithValue(ctx, httpx.CtxKeyScopes, ident.Scopes)
			ctx = context.WithValue(ctx, httpx.CtxKeyAdmin, ident.Admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission enforces a scope on an already-authenticated request.
// Administrators pass every scope check. Must be chained after
// RequireAuth.
func (g *Gate) RequirePermission(scope string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if _, ok := httpx.UserIDFromCtx(ctx); !ok {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				ErrInvalidToken.WriteError(w)
				return
			}

			if !httpx.AdminFromCtx(ctx) && !domain.HasScope(httpx.ScopesFromCtx(ctx), scope) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				ErrInsufficientScope.WriteError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
