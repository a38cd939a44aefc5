package repository

import (
	"context"
	"errors"

	"inkwell/backend/internal/session/domain"
	userdomain "inkwell/backend/internal/user/domain"
)

// ErrTokenConsumed is returned by RotateRefresh when the old lineage was
// already revoked by the time the transaction ran: a concurrent rotation won
// the race, so no replacement may be minted for this caller.
var ErrTokenConsumed = errors.New("refresh token already consumed")

// RefreshLookup is the joined result of a refresh-token lookup: the record,
// its owning session, and the owning user, fetched in one read. The row is
// returned regardless of revocation or expiry so the service can classify the
// failure precisely.
type RefreshLookup struct {
	Record  *domain.RefreshTokenRecord
	Session *domain.Session
	User    *userdomain.User
}

// Repository is the session and refresh-token ledger. Records are append-then-
// flag: revocation flips is_revoked and nothing is ever deleted.
type Repository interface {
	// CreateSession persists a new session. The session must have ID set.
	CreateSession(ctx context.Context, s *domain.Session) error
	// CreateRefreshToken persists a refresh-token record under its session.
	CreateRefreshToken(ctx context.Context, r *domain.RefreshTokenRecord) error
	// FindRefreshToken returns the record with the given token id joined with
	// its session and user, or nil if no such record exists. No state
	// filtering is applied here.
	FindRefreshToken(ctx context.Context, tokenID string) (*RefreshLookup, error)
	// RevokeByTokenID marks every non-revoked record with the given token id
	// revoked. Revoking an already-revoked lineage is a no-op, not an error.
	RevokeByTokenID(ctx context.Context, tokenID string) error
	// RevokeAllForUser revokes every active record across every session owned
	// by the user in a single bulk statement.
	RevokeAllForUser(ctx context.Context, userID string) error
	// RotateRefresh revokes the old lineage and persists the replacement
	// session and record in one transaction, revoke first. Returns
	// ErrTokenConsumed without minting when the old lineage is already
	// revoked.
	RotateRefresh(ctx context.Context, oldTokenID string, s *domain.Session, r *domain.RefreshTokenRecord) error
}
