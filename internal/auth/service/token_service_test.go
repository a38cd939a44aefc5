package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inkwell/backend/internal/security"
	sessiondomain "inkwell/backend/internal/session/domain"
	sessionrepo "inkwell/backend/internal/session/repository"
	userdomain "inkwell/backend/internal/user/domain"
)

type memUserStore struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserStore) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserStore) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memUserStore) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return nil
}

func (r *memUserStore) UpdatePassword(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

type memLedger struct {
	mu       sync.Mutex
	users    *memUserStore
	sessions map[string]*sessiondomain.Session
	// records keyed by tokenID
	records map[string]*sessiondomain.RefreshTokenRecord
}

func newMemLedger(users *memUserStore) *memLedger {
	return &memLedger{
		users:    users,
		sessions: map[string]*sessiondomain.Session{},
		records:  map[string]*sessiondomain.RefreshTokenRecord{},
	}
}

func (l *memLedger) CreateSession(ctx context.Context, s *sessiondomain.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *s
	l.sessions[s.ID] = &cp
	return nil
}

func (l *memLedger) CreateRefreshToken(ctx context.Context, r *sessiondomain.RefreshTokenRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *r
	l.records[r.TokenID] = &cp
	return nil
}

func (l *memLedger) FindRefreshToken(ctx context.Context, tokenID string) (*sessionrepo.RefreshLookup, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[tokenID]
	if !ok {
		return nil, nil
	}
	sess := l.sessions[rec.SessionID]
	l.users.mu.Lock()
	user := l.users.byID[sess.UserID]
	l.users.mu.Unlock()
	return &sessionrepo.RefreshLookup{Record: rec, Session: sess, User: user}, nil
}

func (l *memLedger) RevokeByTokenID(ctx context.Context, tokenID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[tokenID]; ok {
		rec.IsRevoked = true
	}
	return nil
}

func (l *memLedger) RevokeAllForUser(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if sess := l.sessions[rec.SessionID]; sess != nil && sess.UserID == userID {
			rec.IsRevoked = true
		}
	}
	return nil
}

func (l *memLedger) RotateRefresh(ctx context.Context, oldTokenID string, s *sessiondomain.Session, r *sessiondomain.RefreshTokenRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[oldTokenID]
	if !ok || rec.IsRevoked {
		return sessionrepo.ErrTokenConsumed
	}
	rec.IsRevoked = true
	sc := *s
	rc := *r
	l.sessions[s.ID] = &sc
	l.records[r.TokenID] = &rc
	return nil
}

func testCodec() *security.Codec {
	return security.NewCodec(
		[]byte("test-access-secret-0123456789abcdef"),
		[]byte("test-refresh-secret-0123456789abcdef"),
		"inkwell-auth", "inkwell-api",
		15*time.Minute, 7*24*time.Hour,
	)
}

func newTestService(t *testing.T) (*TokenService, *memUserStore, *memLedger) {
	t.Helper()
	users := newMemUserStore()
	ledger := newMemLedger(users)
	svc := NewTokenService(users, ledger, testCodec(), nil)
	return svc, users, ledger
}

func seedUser(t *testing.T, users *memUserStore, id, email string) *userdomain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &userdomain.User{
		ID: id, Email: email, Provider: userdomain.ProviderLocal,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestGenerateTokens_BothVerify(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{UserAgent: "test", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	access, err := svc.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if access.UserID != "u1" || access.Email != "u1@example.com" {
		t.Errorf("access identity: got %+v", access)
	}

	refresh, err := svc.VerifyRefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if refresh.UserID != "u1" || refresh.Email != "u1@example.com" {
		t.Errorf("refresh identity: got %+v", refresh)
	}
}

func TestGenerateTokens_UserNotFound(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GenerateTokens(ctx, "absent", sessiondomain.Meta{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("absent user: want ErrUserNotFound, got %v", err)
	}

	u := seedUser(t, users, "u1", "u1@example.com")
	u.IsDeleted = true
	if _, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("soft-deleted user: want ErrUserNotFound, got %v", err)
	}
}

func TestGenerateTokens_TwoWritesPerCall(t *testing.T) {
	svc, users, ledger := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")

	if _, err := svc.GenerateTokens(context.Background(), "u1", sessiondomain.Meta{}); err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}
	if len(ledger.sessions) != 1 || len(ledger.records) != 1 {
		t.Errorf("writes: got %d sessions, %d records; want 1 and 1", len(ledger.sessions), len(ledger.records))
	}
	for _, rec := range ledger.records {
		if rec.IsRevoked {
			t.Error("fresh record is revoked")
		}
		if len(rec.TokenID) < 54 {
			// 40 bytes of entropy encode to at least 54 base64url chars.
			t.Errorf("token id too short for required entropy: %d chars", len(rec.TokenID))
		}
	}
}

func TestRotateRefreshToken_Scenario(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair1, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id, err := svc.VerifyAccessToken(pair1.AccessToken); err != nil || id.UserID != "u1" {
		t.Fatalf("VerifyAccessToken(A1): id=%+v err=%v", id, err)
	}

	pair2, err := svc.RotateRefreshToken(ctx, pair1.RefreshToken, sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if pair2.AccessToken == pair1.AccessToken {
		t.Error("rotation returned identical access token")
	}
	if pair2.RefreshToken == pair1.RefreshToken {
		t.Error("rotation returned identical refresh token")
	}

	// No-resurrection: the consumed token must stay dead.
	if _, err := svc.VerifyRefreshToken(ctx, pair1.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("old refresh token after rotation: want ErrSessionRevoked, got %v", err)
	}
	id, err := svc.VerifyRefreshToken(ctx, pair2.RefreshToken)
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	if id.UserID != "u1" {
		t.Errorf("new refresh identity: got %+v", id)
	}
}

func TestRotateRefreshToken_InvalidOldDoesNotMint(t *testing.T) {
	svc, _, ledger := newTestService(t)

	if _, err := svc.RotateRefreshToken(context.Background(), "not-a-token", sessiondomain.Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage old token: want ErrInvalidToken, got %v", err)
	}
	if len(ledger.sessions) != 0 || len(ledger.records) != 0 {
		t.Error("rotation of unverifiable token minted ledger rows")
	}
}

func TestRotateRefreshToken_ReuseRevokesAllSessions(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	first, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	rotated, err := svc.RotateRefreshToken(ctx, first.RefreshToken, sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// Replaying the consumed token means someone else holds it: the replay is
	// rejected and every session of the user dies with it.
	if _, err := svc.RotateRefreshToken(ctx, first.RefreshToken, sessiondomain.Meta{}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("replay: want ErrSessionRevoked, got %v", err)
	}
	for name, token := range map[string]string{
		"rotated":        rotated.RefreshToken,
		"second session": second.RefreshToken,
	} {
		if _, err := svc.VerifyRefreshToken(ctx, token); !errors.Is(err, ErrSessionRevoked) {
			t.Errorf("%s token survives reuse response: %v", name, err)
		}
	}
}

// staleLedger reports every record active on read, standing in for the window
// where a concurrent rotation commits between the ledger check and the
// rotation transaction.
type staleLedger struct {
	*memLedger
}

func (l *staleLedger) FindRefreshToken(ctx context.Context, tokenID string) (*sessionrepo.RefreshLookup, error) {
	lookup, err := l.memLedger.FindRefreshToken(ctx, tokenID)
	if lookup != nil {
		cp := *lookup.Record
		cp.IsRevoked = false
		lookup.Record = &cp
	}
	return lookup, err
}

func TestRotateRefreshToken_ConsumedDuringRotation(t *testing.T) {
	users := newMemUserStore()
	ledger := newMemLedger(users)
	svc := NewTokenService(users, &staleLedger{ledger}, testCodec(), nil)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	// The other rotation already consumed the lineage.
	ledger.mu.Lock()
	for _, rec := range ledger.records {
		rec.IsRevoked = true
	}
	ledger.mu.Unlock()

	if _, err := svc.RotateRefreshToken(ctx, pair.RefreshToken, sessiondomain.Meta{}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("losing rotation: want ErrSessionRevoked, got %v", err)
	}

	// No replacement was minted and the reuse response left nothing live.
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if len(ledger.records) != 1 {
		t.Errorf("losing rotation minted a record: %d records", len(ledger.records))
	}
	for _, rec := range ledger.records {
		if !rec.IsRevoked {
			t.Error("live record left after losing rotation")
		}
	}
}

func TestRevokeRefreshToken_Idempotent(t *testing.T) {
	svc, users, ledger := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	svc.RevokeRefreshToken(ctx, pair.RefreshToken)
	if _, err := svc.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("after revoke: want ErrSessionRevoked, got %v", err)
	}

	// Second revoke is a no-op, never an error, and leaves the same state.
	svc.RevokeRefreshToken(ctx, pair.RefreshToken)
	if _, err := svc.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("after double revoke: want ErrSessionRevoked, got %v", err)
	}
	for _, rec := range ledger.records {
		if !rec.IsRevoked {
			t.Error("record not revoked")
		}
	}

	// Undecodable tokens are swallowed silently.
	svc.RevokeRefreshToken(ctx, "garbage")
}

func TestVerifyRefreshToken_ExpiredRecord(t *testing.T) {
	svc, users, ledger := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	// Push the ledger record just past its expiry; the signed token itself
	// is still comfortably valid.
	ledger.mu.Lock()
	for _, rec := range ledger.records {
		rec.ExpiresAt = time.Now().UTC().Add(-time.Millisecond)
	}
	ledger.mu.Unlock()

	if _, err := svc.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired record: want ErrSessionExpired, got %v", err)
	}
}

func TestVerifyRefreshToken_UnknownTokenID(t *testing.T) {
	svc, users, ledger := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	// A validly signed token whose ledger record vanished must not verify.
	ledger.mu.Lock()
	ledger.records = map[string]*sessiondomain.RefreshTokenRecord{}
	ledger.mu.Unlock()

	if _, err := svc.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("missing ledger record: want ErrInvalidToken, got %v", err)
	}
}

func TestRevokeAllUserTokens_OnlyTargetUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "u1", "u1@example.com")
	seedUser(t, users, "u2", "u2@example.com")
	ctx := context.Background()

	var u1Pairs []*TokenPair
	for i := 0; i < 3; i++ {
		p, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
		if err != nil {
			t.Fatalf("GenerateTokens u1: %v", err)
		}
		u1Pairs = append(u1Pairs, p)
	}
	u2Pair, err := svc.GenerateTokens(ctx, "u2", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("GenerateTokens u2: %v", err)
	}

	if err := svc.RevokeAllUserTokens(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAllUserTokens: %v", err)
	}

	for i, p := range u1Pairs {
		if _, err := svc.VerifyRefreshToken(ctx, p.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
			t.Errorf("u1 token %d survived bulk revoke: %v", i, err)
		}
	}
	if _, err := svc.VerifyRefreshToken(ctx, u2Pair.RefreshToken); err != nil {
		t.Errorf("u2 token caught by u1 bulk revoke: %v", err)
	}
}

func TestVerifyRefreshToken_SoftDeletedUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "u1", "u1@example.com")
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "u1", sessiondomain.Meta{})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	u.IsDeleted = true

	if _, err := svc.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("deleted owner: want ErrUserNotFound, got %v", err)
	}
}

func TestVerifyAccessToken_NeverPanics(t *testing.T) {
	svc, _, _ := newTestService(t)
	for _, tok := range []string{"", "x", "..", "a.b.c", "ey.ey.ey"} {
		if _, err := svc.VerifyAccessToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyAccessToken(%q): want ErrInvalidToken, got %v", tok, err)
		}
	}
}
