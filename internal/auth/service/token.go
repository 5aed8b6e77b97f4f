package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openphotolib/photolib/internal/auth/domain"
	"github.com/openphotolib/photolib/internal/auth/registry"
	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/pkg/cryptox"
	"github.com/openphotolib/photolib/pkg/idx"
	"github.com/openphotolib/photolib/pkg/jwtx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// TokenService issues, refreshes, revokes and validates token pairs. The
// access token is a signed JWT for the client's benefit, but the stored
// row is what decides validity so revocation takes effect immediately.
type TokenService struct {
	Store    store.Store
	Registry *registry.Registry
	Signer   jwtx.Signer

	// Verifier pre-filters bearer tokens in Resolve before the store is
	// consulted. Optional; without it every presented token costs a
	// store lookup.
	Verifier jwtx.Verifier

	Issuer    string
	AccessTTL time.Duration
}

// Identity is the resolved subject of a validated access token.
type Identity struct {
	UserID string
	Email  string
	Scopes []string
	Admin  bool
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

// ExchangeAuthorizationCode implements the authorization_code grant.
//
// The code's single-use property rests on the store's conditional
// consume; two concurrent exchanges of the same code can both reach it
// but only one gets tokens.
//
// Returns:
//   - ErrInvalidRequest when code, redirect_uri or client_id is missing
//   - ErrInvalidClient when the client is unknown
//   - ErrInvalidGrant when the code is unknown, expired, already used,
//     issued to another client or bound to a different redirect_uri
func (s *TokenService) ExchangeAuthorizationCode(ctx context.Context, clientID, code, redirectURI string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	clientID = strings.TrimSpace(clientID)
	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	if clientID == "" || code == "" || redirectURI == "" {
		return nil, ErrInvalidRequest
	}

	if _, err := s.Registry.Find(clientID); err != nil {
		return nil, ErrInvalidClient
	}

	now := time.Now().UTC()
	codeHash := cryptox.FingerprintToken(code)

	var pair *domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		authCode, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, codeHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if authCode.ClientID != clientID || authCode.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}

		consumed, err := tx.AuthorizationCodes().ConsumeAuthorizationCode(ctx, codeHash, clientID, now)
		if err != nil {
			return err
		}
		if !consumed {
			log.Warn("authorization code replay rejected", "client_id", clientID)
			return ErrInvalidGrant
		}

		user, err := tx.Users().GetUserByID(ctx, authCode.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if !user.Active() {
			return ErrInvalidGrant
		}

		pair, err = s.mintPair(ctx, tx, user, clientID, authCode.Scopes, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("tokens issued", "client_id", clientID)
	return pair, nil
}

// ExchangeRefreshToken implements the refresh_token grant. Rotation is a
// single conditional update, so the old refresh token dies the moment the
// new pair exists and a replay of it loses cleanly.
//
// Returns:
//   - ErrInvalidRequest when refresh_token is missing
//   - ErrInvalidClient when the client is unknown or the secret mismatches
//   - ErrInvalidRefresh when the refresh token matches no live row
func (s *TokenService) ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRequest
	}

	if !s.Registry.ValidateSecret(strings.TrimSpace(clientID), clientSecret) {
		log.Info("refresh grant client authentication failed", "client_id", clientID)
		return nil, ErrInvalidClient
	}

	now := time.Now().UTC()
	oldHash := cryptox.FingerprintToken(refreshToken)

	var pair *domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		record, err := tx.Tokens().GetTokenByRefreshHash(ctx, clientID, oldHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		user, err := tx.Users().GetUserByID(ctx, record.UserID)
		if err != nil {
			return err
		}
		if !user.Active() {
			return ErrInvalidRefresh
		}

		accessToken, refreshValue, err := s.mintTokens(user, record.Scopes, now)
		if err != nil {
			return err
		}

		rotated, err := tx.Tokens().RotateToken(ctx, clientID, oldHash,
			cryptox.FingerprintToken(accessToken),
			cryptox.FingerprintToken(refreshValue),
			now, now.Add(s.accessTTL()))
		if err != nil {
			return err
		}
		if !rotated {
			log.Warn("refresh token replay rejected", "client_id", clientID)
			return ErrInvalidRefresh
		}

		pair = &domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshValue,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.accessTTL().Seconds()),
			Scope:        strings.Join(record.Scopes, " "),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("tokens refreshed", "client_id", clientID)
	return pair, nil
}

// Revoke invalidates the row matching token by access OR refresh
// fingerprint, per RFC 7009. It reports whether anything was revoked, but
// callers must answer success either way.
func (s *TokenService) Revoke(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	hash := cryptox.FingerprintToken(token)
	revoked, err := s.Store.Tokens().DeleteTokenByEitherHash(ctx, hash)
	if err != nil {
		return false, err
	}
	if revoked {
		slogx.FromContext(ctx).Info("token revoked")
	}
	return revoked, nil
}

// Resolve validates a bearer access token and returns the identity behind
// it. Validation goes through the store so revoked tokens die immediately;
// the side effect is a last_used stamp on the row.
//
// Returns ErrForbidden for unknown, expired or revoked tokens and for
// tokens whose user has since been disabled.
func (s *TokenService) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrForbidden
	}

	// Signature, expiry and issuer are checked offline first; the store
	// lookup then decides revocation.
	if s.Verifier != nil {
		if _, err := s.Verifier.Verify(token); err != nil {
			return Identity{}, ErrForbidden
		}
	}

	now := time.Now().UTC()
	hash := cryptox.FingerprintToken(token)

	valid, err := s.Store.Tokens().ValidateAccessToken(ctx, hash, now)
	if err != nil {
		return Identity{}, err
	}
	if !valid {
		return Identity{}, ErrForbidden
	}

	record, err := s.Store.Tokens().GetTokenByAccessHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrForbidden
		}
		return Identity{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrForbidden
		}
		return Identity{}, err
	}
	if !user.Active() {
		return Identity{}, ErrForbidden
	}

	return Identity{
		UserID: user.ID,
		Email:  user.Email,
		Scopes: record.Scopes,
		Admin:  user.Admin,
	}, nil
}

// mintPair creates and persists a fresh token row for user.
func (s *TokenService) mintPair(ctx context.Context, tx store.Tx, user domain.User, clientID string, scopes []string, now time.Time) (*domain.TokenPair, error) {
	accessToken, refreshToken, err := s.mintTokens(user, scopes, now)
	if err != nil {
		return nil, err
	}

	record := domain.Token{
		ID:          idx.New().String(),
		UserID:      user.ID,
		ClientID:    clientID,
		AccessHash:  cryptox.FingerprintToken(accessToken),
		RefreshHash: cryptox.FingerprintToken(refreshToken),
		Scopes:      scopes,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.accessTTL()),
		CreatedAt:   now,
	}
	if err := tx.Tokens().CreateToken(ctx, record); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL().Seconds()),
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// mintTokens signs the access JWT and draws a fresh opaque refresh token.
func (s *TokenService) mintTokens(user domain.User, scopes []string, now time.Time) (string, string, error) {
	claims := jwtx.NewAccessClaims(user.ID, scopes, s.accessTTL(), s.Issuer, user.Email, now)
	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
