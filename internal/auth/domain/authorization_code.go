package domain

import "time"

// AuthorizationCode represents an OAuth 2.0 authorization code issuance.
// The code value itself is never stored, only its fingerprint.
type AuthorizationCode struct {
	ID          string
	UserID      string
	ClientID    string
	CodeHash    string
	RedirectURI string
	Scopes      []string
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}
