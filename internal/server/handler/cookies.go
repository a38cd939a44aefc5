package handler

import (
	"net/http"
	"time"

	"inkwell/backend/internal/auth/service"
)

const (
	// AccessCookieName rides on every request; path "/".
	AccessCookieName = "accessToken"
	// RefreshCookieName is scoped to the refresh endpoint only, so the
	// long-lived credential is sent nowhere else.
	RefreshCookieName = "refreshToken"
	// RefreshPath is the refresh endpoint, and the refresh cookie's Path.
	RefreshPath = "/api/auth/refresh"
)

// setAuthCookies writes the token pair as httpOnly, SameSite=Strict cookies.
func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair *service.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(h.accessTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     RefreshPath,
		MaxAge:   int(h.refreshTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookies expires both cookies with matching paths.
func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
