// Package middleware holds the request authenticator and role gates for the
// HTTP boundary.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"inkwell/backend/internal/auth/service"
	userdomain "inkwell/backend/internal/user/domain"
)

const bearerPrefix = "bearer "

// AccessCookieName is the cookie carrying the access token.
const AccessCookieName = "accessToken"

// maxPeekBody bounds how much of a request body the extractor will buffer
// while looking for a token field.
const maxPeekBody = 1 << 20

// UserLoader reloads the live account and filtered role state for a verified
// user id. One call per authenticated request.
type UserLoader interface {
	GetByIDWithRoles(ctx context.Context, id string) (*userdomain.WithRoles, error)
}

// AccessVerifier verifies an access token signature. Satisfied by the token service.
type AccessVerifier interface {
	VerifyAccessToken(token string) (*service.Identity, error)
}

// RequireAuth returns middleware that authenticates the request: it extracts a
// bearer credential, verifies it, reloads the live user with filtered role
// relations, and attaches the Identity to the request context. Every failure
// is a uniform 401 with no distinguishing detail; logs keep the kind.
func RequireAuth(tokens AccessVerifier, users UserLoader, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				log.Info("auth: no token", zap.String("path", r.URL.Path))
				unauthorized(w)
				return
			}
			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				log.Info("auth: invalid token", zap.String("path", r.URL.Path))
				unauthorized(w)
				return
			}
			// Signature checks cannot see suspension or deletion that happened
			// after issuance; this single read re-validates live state.
			loaded, err := users.GetByIDWithRoles(r.Context(), claims.UserID)
			if err != nil {
				log.Error("auth: user reload failed", zap.Error(err))
				internalError(w)
				return
			}
			if loaded == nil || loaded.User.IsDeleted {
				log.Info("auth: user not found or deleted", zap.String("user_id", claims.UserID))
				unauthorized(w)
				return
			}
			id := &Identity{
				User:     loaded.User,
				Author:   loaded.Author,
				Admin:    loaded.Admin,
				IsAuthor: loaded.IsAuthor(),
				IsAdmin:  loaded.IsAdmin(),
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// ExtractToken pulls the bearer credential from the request: Authorization
// header first, then the access cookie, then an "accessToken" field in a JSON
// body. The body is re-buffered so downstream handlers can still read it.
func ExtractToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
			return strings.TrimSpace(v[len(bearerPrefix):])
		}
	}
	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return tokenFromBody(r, "accessToken")
}

// tokenFromBody peeks a string field out of a JSON request body, restoring the
// body for later readers.
func tokenFromBody(r *http.Request, field string) string {
	if r.Body == nil {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	var token string
	if err := json.Unmarshal(body[field], &token); err != nil {
		return ""
	}
	return token
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func internalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"internal server error"}`))
}
