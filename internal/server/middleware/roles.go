package middleware

import "net/http"

// RequireAuthor gates a route on a usable author profile. Must run after
// RequireAuth.
func RequireAuthor(next http.Handler) http.Handler {
	return requireRole(next, func(id *Identity) bool { return id.IsAuthor })
}

// RequireAdmin gates a route on a usable admin profile. Must run after
// RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return requireRole(next, func(id *Identity) bool { return id.IsAdmin })
}

func requireRole(next http.Handler, allowed func(*Identity) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r.Context())
		if !ok {
			unauthorized(w)
			return
		}
		if !allowed(id) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
