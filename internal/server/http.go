// Package server wires the auth endpoints into an HTTP server.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"inkwell/backend/internal/server/handler"
)

// Deps holds the handler and middleware dependencies for the router.
type Deps struct {
	Auth        *handler.AuthHandler
	RequireAuth func(http.Handler) http.Handler
	// DB, when set, backs the /healthz readiness ping.
	DB *sql.DB
}

// NewRouter builds the route table. Register, login, refresh, and logout are
// public; everything else sits behind RequireAuth.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(req.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.Auth.Register)
		r.Post("/login", d.Auth.Login)
		r.Post("/refresh", d.Auth.Refresh)
		r.Post("/logout", d.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(d.RequireAuth)
			r.Post("/logout-all", d.Auth.LogoutAll)
			r.Post("/password", d.Auth.ChangePassword)
			r.Get("/me", d.Auth.Me)
		})
	})

	return r
}

// Server is the HTTP server with graceful shutdown.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// New returns a Server listening on addr, with the router wrapped in otelhttp
// instrumentation.
func New(addr string, router http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           otelhttp.NewHandler(router, "inkwell.http"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Run serves until the listener fails. http.ErrServerClosed after Shutdown is
// not an error.
func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
