package repository

import (
	"context"
	"database/sql"
	"errors"

	"inkwell/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, name, provider, password_hash, is_deleted, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByIDWithRoles returns the user and its usable role profiles in one query.
// The join predicates implement the role filters: an author profile counts only
// when neither deleted nor suspended; an admin profile only when not deleted,
// active, and not suspended.
func (r *PostgresRepository) GetByIDWithRoles(ctx context.Context, id string) (*domain.WithRoles, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.provider, u.is_deleted, u.created_at, u.updated_at,
		       a.id, a.pen_name, a.created_at,
		       ad.id, ad.created_at
		FROM users u
		LEFT JOIN authors a
		       ON a.user_id = u.id AND NOT a.is_deleted AND NOT a.is_suspended
		LEFT JOIN admins ad
		       ON ad.user_id = u.id AND NOT ad.is_deleted AND ad.is_active AND NOT ad.is_suspended
		WHERE u.id = $1`, id)

	var (
		u              domain.User
		name           sql.NullString
		authorID       sql.NullString
		penName        sql.NullString
		authorCreated  sql.NullTime
		adminID        sql.NullString
		adminCreated   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &name, &u.Provider, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt,
		&authorID, &penName, &authorCreated,
		&adminID, &adminCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String

	out := &domain.WithRoles{User: &u}
	if authorID.Valid {
		out.Author = &domain.Author{
			ID:        authorID.String,
			UserID:    u.ID,
			PenName:   penName.String,
			CreatedAt: authorCreated.Time,
		}
	}
	if adminID.Valid {
		out.Admin = &domain.Admin{
			ID:        adminID.String,
			UserID:    u.ID,
			IsActive:  true,
			CreatedAt: adminCreated.Time,
		}
	}
	return out, nil
}

// Create persists the user. The user must have ID set; it is not assigned here.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	name := sql.NullString{String: u.Name, Valid: u.Name != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, provider, password_hash, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, name, u.Provider, u.PasswordHash, u.IsDeleted, u.CreatedAt, u.UpdatedAt)
	return err
}

// UpdatePassword replaces the stored password hash for the user.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u    domain.User
		name sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &name, &u.Provider, &u.PasswordHash, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	return &u, nil
}
