package domain

import (
	"errors"
	"time"
)

// AuthProvider tags how the account authenticates.
type AuthProvider string

const (
	ProviderLocal AuthProvider = "local"
)

// User is the core account entity. Accounts are soft-deleted: IsDeleted flips
// and the row stays, so ledger rows referencing the user remain auditable.
type User struct {
	ID           string
	Email        string
	Name         string
	Provider     AuthProvider
	PasswordHash string // loaded only on credential paths, never serialized
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Provider == "" {
		u.Provider = ProviderLocal
	}
	return nil
}

// Author is the author-role profile of a user. The authenticator only loads
// it when neither deleted nor suspended.
type Author struct {
	ID          string
	UserID      string
	PenName     string
	IsDeleted   bool
	IsSuspended bool
	CreatedAt   time.Time
}

// Admin is the admin-role profile of a user. The authenticator only loads it
// when not deleted, active, and not suspended.
type Admin struct {
	ID          string
	UserID      string
	IsActive    bool
	IsDeleted   bool
	IsSuspended bool
	CreatedAt   time.Time
}

// WithRoles is a user together with its live, filtered role profiles as of
// the load. Author and Admin are nil when the user does not currently hold
// the role in usable form.
type WithRoles struct {
	User   *User
	Author *Author
	Admin  *Admin
}

// IsAuthor reports whether the user currently has a usable author profile.
func (w *WithRoles) IsAuthor() bool { return w.Author != nil }

// IsAdmin reports whether the user currently has a usable admin profile.
func (w *WithRoles) IsAdmin() bool { return w.Admin != nil }
