package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openphotolib/photolib/internal/auth/domain"
	"github.com/openphotolib/photolib/internal/auth/registry"
	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/pkg/cryptox"
	"github.com/openphotolib/photolib/pkg/idx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// DefaultCodeTTL is how long an authorization code stays redeemable.
const DefaultCodeTTL = 10 * time.Minute

// AuthorizeService encapsulates the OAuth2 authorization-code issuance flow.
type AuthorizeService struct {
	Store    store.Store
	Registry *registry.Registry
	CodeTTL  time.Duration
}

// AuthorizeRequest captures the query parameters of an authorize request.
// Everything is carried per request; nothing is stored on the service
// between the GET and the POST.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        []string
	State        string
}

// ConsentScope is one line of the consent screen.
type ConsentScope struct {
	Scope       string `json:"scope"`
	Description string `json:"description"`
}

// Consent is the payload rendered to the resource owner on a valid
// authorize GET.
type Consent struct {
	ClientName  string         `json:"client_name"`
	ClientID    string         `json:"client_id"`
	RedirectURI string         `json:"redirect_uri"`
	Scopes      []ConsentScope `json:"scopes"`
	State       string         `json:"state,omitempty"`
}

// AuthorizeCodeResponse contains the authorization code and redirect
// information needed to build the success redirect.
type AuthorizeCodeResponse struct {
	Code        string
	RedirectURI string
	State       string
}

// ValidateRequest checks an authorize GET in the order the protocol
// demands, failing closed at the first violation, and returns the consent
// payload on success.
//
// Returns:
//   - ErrInvalidRequest when response_type or client_id is missing
//   - ErrUnauthorizedClient when the client is unknown or the redirect_uri
//     is missing or not allow-listed
//   - ErrUnsupportedResponseType when response_type is not "code"
//   - ErrInvalidScope when scope is missing or contains an unregistered value
func (s *AuthorizeService) ValidateRequest(ctx context.Context, req AuthorizeRequest) (*Consent, error) {
	responseType := strings.TrimSpace(req.ResponseType)
	clientID := strings.TrimSpace(req.ClientID)
	redirectURI := strings.TrimSpace(req.RedirectURI)

	if responseType == "" || clientID == "" {
		return nil, ErrInvalidRequest
	}

	client, err := s.Registry.Find(clientID)
	if err != nil {
		return nil, ErrUnauthorizedClient
	}

	if responseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	if redirectURI == "" || !s.Registry.ValidateRedirectURI(clientID, redirectURI) {
		return nil, ErrUnauthorizedClient
	}

	if len(req.Scope) == 0 {
		return nil, ErrInvalidScope
	}
	if bad := domain.ValidateScopes(req.Scope); bad != "" {
		slogx.FromContext(ctx).Info("authorize: unregistered scope requested",
			"client_id", clientID, "scope", bad)
		return nil, ErrInvalidScope
	}

	consent := &Consent{
		ClientName:  client.Name,
		ClientID:    client.ID,
		RedirectURI: redirectURI,
		State:       req.State,
	}
	for _, scope := range req.Scope {
		consent.Scopes = append(consent.Scopes, ConsentScope{
			Scope:       scope,
			Description: domain.ScopeDescriptions[scope],
		})
	}
	return consent, nil
}

// Login handles the authorize POST: re-validates the request, verifies the
// resource owner's credentials and issues a single-use authorization code.
// The caller builds the redirect from the returned code and the echoed
// state.
//
// Returns ErrAccessDenied when the credentials are wrong or the account is
// disabled and ErrCodeIssuance when the code could not be persisted; the
// validation errors of ValidateRequest apply unchanged.
func (s *AuthorizeService) Login(ctx context.Context, req AuthorizeRequest, email, password, origin string) (*AuthorizeCodeResponse, error) {
	log := slogx.FromContext(ctx)

	// The GET's validation happened in a different request; nothing from it
	// can be trusted here.
	if _, err := s.ValidateRequest(ctx, req); err != nil {
		return nil, err
	}

	user, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}

	// Codes are plain uuid4 values; only the fingerprint is persisted.
	code := uuid.NewString()
	record := domain.AuthorizationCode{
		ID:          idx.New().String(),
		UserID:      user.ID,
		ClientID:    req.ClientID,
		CodeHash:    cryptox.FingerprintToken(code),
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scope,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
			return err
		}
		return tx.Users().TouchLastLogin(ctx, user.ID, now, origin)
	})
	if err != nil {
		// The cause stays server-side; the caller only learns the code
		// could not be issued.
		log.Error("failed to persist authorization code",
			"err", err, "user_id", user.ID, "client_id", req.ClientID)
		return nil, ErrCodeIssuance
	}

	log.Info("authorization code issued",
		"user_id", user.ID, "client_id", req.ClientID)

	return &AuthorizeCodeResponse{
		Code:        code,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}, nil
}

// checkCredentials verifies an email/password pair against the store. A
// missing user, a disabled account and a wrong password all collapse into
// the same ErrAccessDenied so the response leaks nothing.
func (s *AuthorizeService) checkCredentials(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, ErrAccessDenied
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrAccessDenied
		}
		return domain.User{}, err
	}
	if !user.Active() {
		return domain.User{}, ErrAccessDenied
	}
	if cryptox.VerifyPassword(password, user.PasswordHash) != nil {
		return domain.User{}, ErrAccessDenied
	}
	return user, nil
}
