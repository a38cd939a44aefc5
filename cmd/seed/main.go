// seed inserts development sample accounts for local testing.
// Idempotent: skips inserts if the dev admin (admin@inkwell.dev) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"inkwell/backend/internal/config"
	"inkwell/backend/internal/db"
	"inkwell/backend/internal/security"
	userdomain "inkwell/backend/internal/user/domain"
	userrepo "inkwell/backend/internal/user/repository"
)

const (
	adminEmail  = "admin@inkwell.dev"
	authorEmail = "author@inkwell.dev"
	readerEmail = "reader@inkwell.dev"
	devPassword = "inkwell-dev-password"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = database.Close() }()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(database)

	existing, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("seed lookup: %v", err)
	}
	if existing != nil {
		log.Println("seed: dev accounts already present, nothing to do")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed hash: %v", err)
	}

	now := time.Now().UTC()
	adminID := uuid.New().String()
	authorID := uuid.New().String()
	for _, u := range []*userdomain.User{
		{ID: adminID, Email: adminEmail, Name: "Dev Admin", Provider: userdomain.ProviderLocal, PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
		{ID: authorID, Email: authorEmail, Name: "Dev Author", Provider: userdomain.ProviderLocal, PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New().String(), Email: readerEmail, Name: "Dev Reader", Provider: userdomain.ProviderLocal, PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
	} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed user %s: %v", u.Email, err)
		}
	}

	if _, err := database.ExecContext(ctx, `
		INSERT INTO admins (id, user_id, is_active, created_at) VALUES ($1, $2, TRUE, $3)`,
		uuid.New().String(), adminID, now); err != nil {
		log.Fatalf("seed admin profile: %v", err)
	}
	if _, err := database.ExecContext(ctx, `
		INSERT INTO authors (id, user_id, pen_name, created_at) VALUES ($1, $2, 'dev-author', $3)`,
		uuid.New().String(), authorID, now); err != nil {
		log.Fatalf("seed author profile: %v", err)
	}

	log.Printf("seed: created dev accounts (%s / %s / %s), password %q", adminEmail, authorEmail, readerEmail, devPassword)
}
