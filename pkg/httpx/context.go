package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyScopes ctxKey = "scopes"
	CtxKeyAdmin  ctxKey = "admin"
)

// UserIDFromCtx returns the authenticated user ID set by the auth gate.
func UserIDFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUserID).(string)
	return v, ok
}

// ScopesFromCtx returns the granted scope set for the request.
func ScopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}

// AdminFromCtx reports whether the authenticated user is an admin.
func AdminFromCtx(ctx context.Context) bool {
	v, _ := ctx.Value(CtxKeyAdmin).(bool)
	return v
}
