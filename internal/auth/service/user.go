package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openphotolib/photolib/internal/auth/domain"
	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/pkg/cryptox"
	"github.com/openphotolib/photolib/pkg/idx"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// DefaultAdminEmail is the login of the auto-provisioned administrator.
const DefaultAdminEmail = "admin@photos.network"

// UserService manages user accounts.
type UserService struct {
	Store store.Store
}

// CreateUserParams are the fields accepted at signup.
type CreateUserParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Admin     bool
}

// Create registers a new user. Returns ErrAlreadyRegistered when the
// email is taken and ErrInvalidRequest when email or password is empty.
func (s *UserService) Create(ctx context.Context, p CreateUserParams) (domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" || p.Password == "" {
		return domain.User{}, ErrInvalidRequest
	}

	hash, err := cryptox.HashPassword(p.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Admin:        p.Admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrAlreadyRegistered
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user created", "user_id", user.ID)
	return user, nil
}

// UpdateUserParams carries a partial update; nil fields stay untouched.
type UpdateUserParams struct {
	Email     *string
	FirstName *string
	LastName  *string
	Admin     *bool
}

// Update applies a partial update to a user.
func (s *UserService) Update(ctx context.Context, userID string, p UpdateUserParams) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if p.Email != nil {
		user.Email = strings.TrimSpace(strings.ToLower(*p.Email))
	}
	if p.FirstName != nil {
		user.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		user.LastName = *p.LastName
	}
	if p.Admin != nil {
		user.Admin = *p.Admin
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrAlreadyRegistered
		}
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// ChangePassword rehashes and stores a new password for the user.
func (s *UserService) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidRequest
	}
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// Disable flags the account, stamps its deletion date and revokes every
// token the user holds, all in one transaction. The user row itself stays
// so audit references keep resolving.
func (s *UserService) Disable(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableUser(ctx, userID, now); err != nil {
			return err
		}
		return tx.Tokens().DeleteAllUserTokens(ctx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("user disabled, tokens revoked", "user_id", userID)
	return nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return user, err
}

// EnsureDefaultAdmin provisions the default administrator when the user
// table is empty. The generated password is logged exactly once at WARN;
// the operator is expected to log in and change it.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	password, err := cryptox.GeneratePassword()
	if err != nil {
		return err
	}

	if _, err := s.Create(ctx, CreateUserParams{
		Email:    DefaultAdminEmail,
		Password: password,
		Admin:    true,
	}); err != nil {
		return err
	}

	log.Warn("created default admin user",
		"email", DefaultAdminEmail,
		"password", password,
	)
	return nil
}
