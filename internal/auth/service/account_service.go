package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inkwell/backend/internal/security"
	sessiondomain "inkwell/backend/internal/session/domain"
	userdomain "inkwell/backend/internal/user/domain"
)

// AccountStore is the account-store surface the account service needs beyond
// what the token service reads.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// AccountService implements register, login, and change-password on top of
// the token service. Password hashing stays behind security.Hasher.
type AccountService struct {
	users  AccountStore
	tokens *TokenService
	hasher *security.Hasher
	log    *zap.Logger
}

// NewAccountService returns an AccountService with the given dependencies.
func NewAccountService(users AccountStore, tokens *TokenService, hasher *security.Hasher, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{users: users, tokens: tokens, hasher: hasher, log: log}
}

// Register creates a local-provider user with the given email and password.
// Returns ErrEmailTaken when the email is already registered.
func (s *AccountService) Register(ctx context.Context, email, password, name string) (*userdomain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Provider:     userdomain.ProviderLocal,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and mints a token pair under a new session.
// Every failure mode reads as ErrInvalidCredentials; a soft-deleted account
// is indistinguishable from a wrong password.
func (s *AccountService) Login(ctx context.Context, email, password string, meta sessiondomain.Meta) (*userdomain.User, *TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup email: %w", err)
	}
	if u == nil || u.IsDeleted || u.PasswordHash == "" {
		return nil, nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	pair, err := s.tokens.GenerateTokens(ctx, u.ID, meta)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every outstanding refresh token for the user. Existing access
// tokens run out on their own expiry.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil || u.IsDeleted {
		return ErrUserNotFound
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := s.hasher.Hash([]byte(next))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hashed); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.tokens.RevokeAllUserTokens(ctx, userID); err != nil {
		// The password did change; surviving refresh tokens are the
		// operational concern to log, not a reason to fail the request.
		s.log.Warn("change password: revoke all failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return fmt.Errorf("%w: invalid email format", ErrInvalidCredentials)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidCredentials)
	}
	return nil
}
