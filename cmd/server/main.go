package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"inkwell/backend/internal/audit"
	auditrepo "inkwell/backend/internal/audit/repository"
	authservice "inkwell/backend/internal/auth/service"
	"inkwell/backend/internal/config"
	"inkwell/backend/internal/db"
	"inkwell/backend/internal/logging"
	"inkwell/backend/internal/security"
	"inkwell/backend/internal/server"
	"inkwell/backend/internal/server/handler"
	"inkwell/backend/internal/server/middleware"
	sessionrepo "inkwell/backend/internal/session/repository"
	"inkwell/backend/internal/telemetry/otel"
	userrepo "inkwell/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "inkwell-auth",
		Env:     cfg.Env,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "inkwell-auth", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	users := userrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(database), logger)

	codec := security.NewCodec(
		[]byte(cfg.AccessTokenSecret),
		[]byte(cfg.RefreshTokenSecret),
		cfg.JWTIssuer,
		cfg.JWTAudience,
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
	)
	hasher := security.NewHasher(cfg.BcryptCost)

	tokens := authservice.NewTokenService(users, sessions, codec, logger)
	accounts := authservice.NewAccountService(users, tokens, hasher, logger)

	authHandler := handler.NewAuthHandler(accounts, tokens, handler.Opts{
		Audit:        auditLog,
		Logger:       logger,
		CookieSecure: cfg.CookieSecure,
		AccessTTL:    cfg.AccessTTL(),
		RefreshTTL:   cfg.RefreshTTL(),
	})

	router := server.NewRouter(server.Deps{
		Auth:        authHandler,
		RequireAuth: middleware.RequireAuth(tokens, users, logger),
		DB:          database,
	})

	srv := server.New(cfg.HTTPAddr, router, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("serve", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}
