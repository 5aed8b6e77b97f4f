package service

import "errors"

// Sentinel errors shared by the services. Names follow the OAuth2 error
// codes the HTTP layer maps them to.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrAccessDenied            = errors.New("access_denied")
	ErrInvalidRefresh          = errors.New("invalid_refresh_token")

	// ErrCodeIssuance stands in for a storage failure while persisting a
	// freshly minted authorization code. Credentials already verified at
	// that point, so the authorize flow reports it on the redirect channel.
	ErrCodeIssuance = errors.New("code_issuance_failed")

	ErrForbidden = errors.New("forbidden")

	ErrAlreadyRegistered = errors.New("already_registered")
	ErrUserNotFound      = errors.New("user_not_found")
)
