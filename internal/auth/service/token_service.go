package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inkwell/backend/internal/security"
	sessiondomain "inkwell/backend/internal/session/domain"
	sessionrepo "inkwell/backend/internal/session/repository"
	userdomain "inkwell/backend/internal/user/domain"
)

// TokenPair is an access/refresh token pair as handed to the HTTP boundary.
// The refresh token's ledger handle is deliberately absent: callers only ever
// see the signed tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the verified identity extracted from a token. It carries no
// token ids, so a leaked return value cannot be replayed against the ledger.
type Identity struct {
	UserID string
	Email  string
}

// UserStore is the minimal account-store surface the token service needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Ledger is the session and refresh-token ledger surface the token service needs.
type Ledger interface {
	CreateSession(ctx context.Context, s *sessiondomain.Session) error
	CreateRefreshToken(ctx context.Context, r *sessiondomain.RefreshTokenRecord) error
	FindRefreshToken(ctx context.Context, tokenID string) (*sessionrepo.RefreshLookup, error)
	RevokeByTokenID(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	RotateRefresh(ctx context.Context, oldTokenID string, s *sessiondomain.Session, r *sessiondomain.RefreshTokenRecord) error
}

// TokenService issues, verifies, rotates, and revokes token pairs. Access
// tokens are stateless; refresh tokens are backed by revocable ledger records.
type TokenService struct {
	users  UserStore
	ledger Ledger
	codec  *security.Codec
	log    *zap.Logger
}

// NewTokenService returns a TokenService with the given dependencies.
func NewTokenService(users UserStore, ledger Ledger, codec *security.Codec, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{users: users, ledger: ledger, codec: codec, log: log}
}

// GenerateTokens creates a session for the user and returns a fresh token
// pair. Fails with ErrUserNotFound when the user is absent or soft-deleted.
func (s *TokenService) GenerateTokens(ctx context.Context, userID string, meta sessiondomain.Meta) (*TokenPair, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || u.IsDeleted {
		return nil, ErrUserNotFound
	}
	return s.mint(ctx, u, meta, "")
}

// VerifyAccessToken checks an access token's signature and expiry. Pure codec
// work, no storage: access tokens are individually unrevokable and end only
// by expiry or secret rotation.
func (s *TokenService) VerifyAccessToken(token string) (*Identity, error) {
	claims, err := s.codec.VerifyAccess(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// VerifyRefreshToken checks the token signature, then requires an active
// ledger record for the embedded handle and a live owning user. Returns the
// identity only; the ledger handle is never re-exposed.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.codec.VerifyRefresh(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	lookup, err := s.checkLedger(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: lookup.User.ID, Email: lookup.User.Email}, nil
}

// RotateRefreshToken exchanges a verified refresh token for a fresh pair under
// a brand-new session. Ownership is derived from the presented token itself,
// never from a caller-supplied id. The old lineage is revoked in the same
// transaction that persists the replacement, revoke first, so two concurrent
// rotations of one stolen token cannot both leave a live lineage behind.
//
// Replaying an already-consumed token is treated as compromise: someone holds
// a token that was rotated away, so every session of the user is revoked
// before the replay is rejected.
func (s *TokenService) RotateRefreshToken(ctx context.Context, oldToken string, meta sessiondomain.Meta) (*TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(oldToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	lookup, err := s.checkLedger(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, ErrSessionRevoked) && lookup != nil {
			s.respondToReuse(ctx, lookup.User.ID)
		}
		return nil, err
	}
	pair, err := s.mint(ctx, lookup.User, meta, claims.TokenID)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrTokenConsumed) {
			// A concurrent rotation consumed the token between the ledger
			// check and the transaction: same replay, same response.
			s.respondToReuse(ctx, lookup.User.ID)
			return nil, ErrSessionRevoked
		}
		return nil, err
	}
	return pair, nil
}

// respondToReuse revokes every session of the user after a consumed refresh
// token was presented again. Best-effort: the replay is rejected either way.
func (s *TokenService) respondToReuse(ctx context.Context, userID string) {
	s.log.Warn("refresh token reuse detected, revoking all user sessions", zap.String("user_id", userID))
	if err := s.ledger.RevokeAllForUser(ctx, userID); err != nil {
		s.log.Error("reuse response: revoke all failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// RevokeRefreshToken revokes the ledger record behind the given refresh token.
// Best-effort: logout must never fail user-visibly, so decode and storage
// problems are logged and swallowed. Revoking an already-revoked token is a
// no-op.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, token string) {
	claims, err := s.codec.VerifyRefresh(token)
	if err != nil {
		s.log.Info("logout: refresh token decode failed", zap.Error(err))
		return
	}
	if err := s.ledger.RevokeByTokenID(ctx, claims.TokenID); err != nil {
		s.log.Warn("logout: revoke failed", zap.Error(err))
	}
}

// RevokeAllUserTokens revokes every active refresh token across every session
// of the user in one bulk update. Used for "log out everywhere" and account
// compromise response; storage failure is returned, not swallowed.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string) error {
	if err := s.ledger.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke all for user: %w", err)
	}
	return nil
}

// checkLedger applies the Active predicate to the ledger row for tokenID and
// maps each failing leg to its own sentinel so logs keep the specific kind.
// On a classification failure the row is still returned next to the error, so
// the rotation path can identify the owner of a replayed token.
func (s *TokenService) checkLedger(ctx context.Context, tokenID string) (*sessionrepo.RefreshLookup, error) {
	lookup, err := s.ledger.FindRefreshToken(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	now := time.Now().UTC()
	switch {
	case lookup == nil:
		s.log.Info("refresh token has no ledger record")
		return nil, ErrInvalidToken
	case lookup.Record.IsRevoked:
		s.log.Info("refresh token is revoked", zap.String("session_id", lookup.Session.ID))
		return lookup, ErrSessionRevoked
	case !lookup.Record.ExpiresAt.After(now):
		s.log.Info("refresh token is expired", zap.String("session_id", lookup.Session.ID))
		return lookup, ErrSessionExpired
	case lookup.User.IsDeleted:
		s.log.Info("refresh token owner is deleted", zap.String("user_id", lookup.User.ID))
		return lookup, ErrUserNotFound
	}
	return lookup, nil
}

// mint signs a fresh pair and persists the new session and refresh record.
// With oldTokenID set the writes run inside the rotation transaction; otherwise
// they are two plain inserts.
func (s *TokenService) mint(ctx context.Context, u *userdomain.User, meta sessiondomain.Meta, oldTokenID string) (*TokenPair, error) {
	now := time.Now().UTC()
	sess := &sessiondomain.Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}

	accessToken, _, err := s.codec.SignAccess(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	tokenID, err := security.NewTokenID()
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}
	refreshToken, refreshExp, err := s.codec.SignRefresh(u.ID, u.Email, tokenID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	rec := &sessiondomain.RefreshTokenRecord{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		TokenID:   tokenID,
		CreatedAt: now,
		ExpiresAt: refreshExp,
	}

	if oldTokenID != "" {
		if err := s.ledger.RotateRefresh(ctx, oldTokenID, sess, rec); err != nil {
			return nil, err
		}
	} else {
		if err := s.ledger.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if err := s.ledger.CreateRefreshToken(ctx, rec); err != nil {
			return nil, fmt.Errorf("create refresh token: %w", err)
		}
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
