package domain

import "time"

// TokenPair is what the token endpoint returns, the short-lived access
// token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"` // "Bearer"
	ExpiresIn    int64  `json:"expires_in"`           // seconds until expiry
	Scope        string `json:"scope,omitempty"`      // space-delimited
}

// Token models the stored access/refresh token record. Both halves of the
// pair live on one row; refresh rotation rewrites the hashes in place.
type Token struct {
	ID          string
	UserID      string
	ClientID    string
	AccessHash  string // fingerprint of the access JWT
	RefreshHash string // fingerprint of the opaque refresh token
	Scopes      []string
	IssuedAt    time.Time
	ExpiresAt   time.Time // access-token expiry; refresh half has no deadline
	LastUsed    *time.Time
	CreatedAt   time.Time
}

// ValidAt reports whether the access half is live at now. The validity
// window is half-open, a token issued at T with lifetime L dies exactly
// at T+L.
func (t Token) ValidAt(now time.Time) bool {
	return !now.Before(t.IssuedAt) && now.Before(t.ExpiresAt)
}
