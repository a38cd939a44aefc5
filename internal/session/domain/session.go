package domain

import "time"

// Session is one logical login instance. A session is created at login and at
// every rotation; it parents a refresh-token lineage.
type Session struct {
	ID        string
	UserID    string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Meta carries the request attributes recorded on a session.
type Meta struct {
	UserAgent string
	IPAddress string
}

// RefreshTokenRecord is the persisted, revocable half of a refresh token.
// TokenID is the opaque random handle embedded in the signed token; the token
// itself is never stored. Records are never deleted: revocation is a terminal
// flag flip and natural expiry needs no mutation at all.
type RefreshTokenRecord struct {
	ID        string
	SessionID string
	TokenID   string
	IsRevoked bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Active reports whether the record is usable at the given instant:
// not revoked and not expired.
func (r *RefreshTokenRecord) Active(now time.Time) bool {
	return !r.IsRevoked && r.ExpiresAt.After(now)
}
