package store

import (
	"context"
	"errors"
	"time"

	"github.com/openphotolib/photolib/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement
// this. It exposes sub-repositories to keep concerns tidy and testable,
// and so transactions can't accidentally nest.
type Store interface {
	Users() Users
	AuthorizationCodes() AuthorizationCodes
	Tokens() Tokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Prefer this over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser applies name/email changes and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// DisableUser flags the account and stamps deleted_at. The row stays so
	// audit history keeps its foreign keys.
	DisableUser(ctx context.Context, userID string, at time.Time) error

	// TouchLastLogin records a successful authentication and its origin.
	TouchLastLogin(ctx context.Context, userID string, at time.Time, origin string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its hashed value.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically marks the code used, but only when
	// it belongs to clientID, is unused and has not expired at now. Returns
	// false when no row qualified, the single check that makes a code
	// single-use under concurrent redemption.
	ConsumeAuthorizationCode(ctx context.Context, hash, clientID string, now time.Time) (bool, error)

	// DeleteExpiredAuthorizationCodes removes codes that are no longer valid.
	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) error
}

type Tokens interface {
	// CreateToken stores a new access/refresh token pair record.
	CreateToken(ctx context.Context, t domain.Token) error

	// GetTokenByAccessHash returns the record holding this access token.
	GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error)

	// GetTokenByRefreshHash returns the record for a client's refresh token.
	GetTokenByRefreshHash(ctx context.Context, clientID, hash string) (domain.Token, error)

	// RotateToken atomically replaces both hashes and the expiry window of
	// the row matching clientID+oldRefreshHash. Returns false when the old
	// refresh token no longer matches any row, so a second redemption of
	// the same refresh token loses the race cleanly.
	RotateToken(ctx context.Context, clientID, oldRefreshHash, newAccessHash, newRefreshHash string, issuedAt, expiresAt time.Time) (bool, error)

	// ValidateAccessToken atomically checks the access token is live at now
	// and stamps last_used. Returns false for unknown or expired tokens.
	ValidateAccessToken(ctx context.Context, accessHash string, now time.Time) (bool, error)

	// DeleteTokenByEitherHash removes the record whose access OR refresh
	// fingerprint equals hash. Returns whether a row was deleted.
	DeleteTokenByEitherHash(ctx context.Context, hash string) (bool, error)

	// DeleteAllUserTokens revokes everything a user holds, used when an
	// account is disabled.
	DeleteAllUserTokens(ctx context.Context, userID string) error

	// DeleteExpiredTokens is housekeeping for rows whose access token
	// expired and whose refresh token was never exercised for longer than
	// the retention window.
	DeleteExpiredTokens(ctx context.Context, olderThan time.Time) error
}
