// Package handler exposes the auth endpoints: register, login, refresh,
// logout, logout-all, change-password, and me.
package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"inkwell/backend/internal/audit"
	auditdomain "inkwell/backend/internal/audit/domain"
	"inkwell/backend/internal/auth/service"
	"inkwell/backend/internal/server/middleware"
	sessiondomain "inkwell/backend/internal/session/domain"
	userdomain "inkwell/backend/internal/user/domain"
)

// AuthHandler serves the auth endpoints.
type AuthHandler struct {
	accounts     *service.AccountService
	tokens       *service.TokenService
	audit        audit.AuditLogger
	log          *zap.Logger
	cookieSecure bool
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

// Opts configures an AuthHandler.
type Opts struct {
	Audit        audit.AuditLogger
	Logger       *zap.Logger
	CookieSecure bool
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// NewAuthHandler returns an AuthHandler with the given services.
func NewAuthHandler(accounts *service.AccountService, tokens *service.TokenService, o Opts) *AuthHandler {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := o.Audit
	if a == nil {
		a = audit.NewLogger(nil, log)
	}
	return &AuthHandler{
		accounts:     accounts,
		tokens:       tokens,
		audit:        a,
		log:          log,
		cookieSecure: o.CookieSecure,
		accessTTL:    o.AccessTTL,
		refreshTTL:   o.RefreshTTL,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Register creates a new account. It does not sign the user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidCredentials.Error()+": "))
		default:
			h.log.Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	h.audit.LogEvent(r.Context(), u.ID, auditdomain.ActionRegister, "user", clientIP(r), "")
	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserResponse(u)})
}

// Login verifies credentials, mints a token pair, and sets the auth cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, pair, err := h.accounts.Login(r.Context(), req.Email, req.Password, sessionMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrUserNotFound) {
			h.audit.LogEvent(r.Context(), "", auditdomain.ActionLoginFailure, "session", clientIP(r), req.Email)
			unauthorized(w)
			return
		}
		h.log.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.audit.LogEvent(r.Context(), u.ID, auditdomain.ActionLogin, "session", clientIP(r), "")
	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        toUserResponse(u),
		"accessToken": pair.AccessToken,
	})
}

// Refresh rotates the refresh token from the cookie and replaces both cookies.
// Any verification failure clears the cookies and answers a generic 401.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFrom(r)
	if raw == "" {
		h.log.Info("refresh: no token")
		unauthorized(w)
		return
	}
	pair, err := h.tokens.RotateRefreshToken(r.Context(), raw, sessionMeta(r))
	if err != nil {
		if isAuthError(err) {
			h.log.Info("refresh rejected", zap.String("kind", err.Error()))
			h.clearAuthCookies(w)
			unauthorized(w)
			return
		}
		h.log.Error("refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.audit.LogEvent(r.Context(), "", auditdomain.ActionRefresh, "session", clientIP(r), "")
	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": pair.AccessToken})
}

// Logout best-effort revokes the presented refresh token and clears both
// cookies. It always reports success: a logout that cannot revoke anything
// still ends the browser session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := h.refreshTokenFrom(r); raw != "" {
		h.tokens.RevokeRefreshToken(r.Context(), raw)
	}
	h.audit.LogEvent(r.Context(), currentUserID(r), auditdomain.ActionLogout, "session", clientIP(r), "")
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// LogoutAll revokes every refresh token of the authenticated user in one bulk
// update. Runs behind RequireAuth.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		unauthorized(w)
		return
	}
	if err := h.tokens.RevokeAllUserTokens(r.Context(), id.User.ID); err != nil {
		h.log.Error("logout-all failed", zap.String("user_id", id.User.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.audit.LogEvent(r.Context(), id.User.ID, auditdomain.ActionLogoutAll, "session", clientIP(r), "")
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out everywhere"})
}

// ChangePassword updates the password and revokes all refresh tokens. Runs
// behind RequireAuth.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		unauthorized(w)
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.accounts.ChangePassword(r.Context(), id.User.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			unauthorized(w)
		case errors.Is(err, service.ErrUserNotFound):
			unauthorized(w)
		default:
			h.log.Error("change password failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	h.audit.LogEvent(r.Context(), id.User.ID, auditdomain.ActionChangePassword, "user", clientIP(r), "")
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// Me returns the authenticated identity. Runs behind RequireAuth.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		unauthorized(w)
		return
	}
	resp := map[string]any{
		"user":     toUserResponse(id.User),
		"isAuthor": id.IsAuthor,
		"isAdmin":  id.IsAdmin,
	}
	if id.Author != nil {
		resp["author"] = map[string]string{"id": id.Author.ID, "penName": id.Author.PenName}
	}
	if id.Admin != nil {
		resp["admin"] = map[string]string{"id": id.Admin.ID}
	}
	writeJSON(w, http.StatusOK, resp)
}

// refreshTokenFrom reads the refresh token from its cookie, falling back to a
// "refreshToken" JSON body field. The cookie is path-scoped to the refresh
// endpoint, so logout callers typically supply the body field.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	return body.RefreshToken
}

func isAuthError(err error) bool {
	return errors.Is(err, service.ErrInvalidToken) ||
		errors.Is(err, service.ErrSessionExpired) ||
		errors.Is(err, service.ErrSessionRevoked) ||
		errors.Is(err, service.ErrUserNotFound)
}

func sessionMeta(r *http.Request) sessiondomain.Meta {
	return sessiondomain.Meta{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}
}

func currentUserID(r *http.Request) string {
	if id, ok := middleware.GetIdentity(r.Context()); ok {
		return id.User.ID
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
