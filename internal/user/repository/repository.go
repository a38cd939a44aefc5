package repository

import (
	"context"

	"inkwell/backend/internal/user/domain"
)

// Repository is the account-store read/write surface this core consumes.
// Implementations return (nil, nil) for missing rows; errors mean storage
// failure only.
type Repository interface {
	// GetByID returns the user for id, or nil if not found. Soft-deleted
	// users are returned with IsDeleted set; callers decide how to treat them.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail returns the user with the given email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByIDWithRoles returns the user together with its filtered role
	// profiles in a single query: the author profile only when neither
	// deleted nor suspended, the admin profile only when not deleted, active,
	// and not suspended. Returns nil when the user row is absent.
	GetByIDWithRoles(ctx context.Context, id string) (*domain.WithRoles, error)
	// Create persists the user. The user must have ID set.
	Create(ctx context.Context, u *domain.User) error
	// UpdatePassword replaces the stored password hash for the user.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
