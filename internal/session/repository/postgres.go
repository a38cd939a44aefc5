package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"inkwell/backend/internal/session/domain"
	userdomain "inkwell/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session ledger backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateSession persists the session. The session must have ID set.
func (r *PostgresRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	ua := sql.NullString{String: s.UserAgent, Valid: s.UserAgent != ""}
	ip := sql.NullString{String: s.IPAddress, Valid: s.IPAddress != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, ua, ip, s.CreatedAt, s.ExpiresAt)
	return err
}

// CreateRefreshToken persists the refresh-token record.
func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, rec *domain.RefreshTokenRecord) error {
	return createRefreshToken(ctx, r.db, rec)
}

// FindRefreshToken returns the record for tokenID joined with its session and
// owning user, or nil if absent. One read; no state filtering.
func (r *PostgresRepository) FindRefreshToken(ctx context.Context, tokenID string) (*RefreshLookup, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT rt.id, rt.session_id, rt.token_id, rt.is_revoked, rt.created_at, rt.expires_at,
		       s.id, s.user_id, s.user_agent, s.ip_address, s.created_at, s.expires_at,
		       u.id, u.email, u.name, u.provider, u.is_deleted, u.created_at, u.updated_at
		FROM refresh_tokens rt
		JOIN sessions s ON s.id = rt.session_id
		JOIN users u ON u.id = s.user_id
		WHERE rt.token_id = $1`, tokenID)

	var (
		rec   domain.RefreshTokenRecord
		sess  domain.Session
		user  userdomain.User
		ua    sql.NullString
		ip    sql.NullString
		uname sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.TokenID, &rec.IsRevoked, &rec.CreatedAt, &rec.ExpiresAt,
		&sess.ID, &sess.UserID, &ua, &ip, &sess.CreatedAt, &sess.ExpiresAt,
		&user.ID, &user.Email, &uname, &user.Provider, &user.IsDeleted, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.UserAgent = ua.String
	sess.IPAddress = ip.String
	user.Name = uname.String
	return &RefreshLookup{Record: &rec, Session: &sess, User: &user}, nil
}

// RevokeByTokenID marks every non-revoked record with the token id revoked.
// Zero matched rows is success: the lineage was already revoked or never existed.
func (r *PostgresRepository) RevokeByTokenID(ctx context.Context, tokenID string) error {
	_, err := revokeByTokenID(ctx, r.db, tokenID)
	return err
}

// RevokeAllForUser revokes every active record for the user in one bulk UPDATE
// so concurrent logins cannot interleave with a per-row loop.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens rt
		SET is_revoked = TRUE
		FROM sessions s
		WHERE rt.session_id = s.id AND s.user_id = $1 AND NOT rt.is_revoked`,
		userID)
	return err
}

// RotateRefresh revokes the old lineage and persists the replacement session
// and record inside one transaction. The revoke runs first, so two concurrent
// rotations of the same token serialize on the row update; the loser sees
// zero rows revoked and gets ErrTokenConsumed instead of a live replacement.
func (r *PostgresRepository) RotateRefresh(ctx context.Context, oldTokenID string, s *domain.Session, rec *domain.RefreshTokenRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rotate: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	revoked, err := revokeByTokenID(ctx, tx, oldTokenID)
	if err != nil {
		return fmt.Errorf("rotate: revoke old: %w", err)
	}
	if revoked == 0 {
		return ErrTokenConsumed
	}
	ua := sql.NullString{String: s.UserAgent, Valid: s.UserAgent != ""}
	ip := sql.NullString{String: s.IPAddress, Valid: s.IPAddress != ""}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, ua, ip, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("rotate: create session: %w", err)
	}
	if err := createRefreshToken(ctx, tx, rec); err != nil {
		return fmt.Errorf("rotate: create refresh token: %w", err)
	}
	return tx.Commit()
}

// execer lets the insert/update helpers run against either *sql.DB or *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createRefreshToken(ctx context.Context, ex execer, rec *domain.RefreshTokenRecord) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, session_id, token_id, is_revoked, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SessionID, rec.TokenID, rec.IsRevoked, rec.CreatedAt, rec.ExpiresAt)
	return err
}

func revokeByTokenID(ctx context.Context, ex execer, tokenID string) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE
		WHERE token_id = $1 AND NOT is_revoked`,
		tokenID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
