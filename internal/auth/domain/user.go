package domain

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2 encoded
	FirstName    string
	LastName     string
	Admin        bool
	Disabled     bool
	LastLogin    *time.Time
	LastIP       string // origin of the most recent successful login
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // set when the account is disabled
}

// Active reports whether the user may authenticate.
func (u User) Active() bool {
	return !u.Disabled && u.DeletedAt == nil
}
