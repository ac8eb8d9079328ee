// seed inserts the built-in roles and development accounts for local testing.
// Idempotent: roles are upserted and existing users are left untouched.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"blog-cms/backend/internal/config"
	"blog-cms/backend/internal/db"
	identitydomain "blog-cms/backend/internal/identity/domain"
	identityrepo "blog-cms/backend/internal/identity/repository"
	roledomain "blog-cms/backend/internal/role/domain"
	rolerepo "blog-cms/backend/internal/role/repository"
	"blog-cms/backend/internal/security"
	userdomain "blog-cms/backend/internal/user/domain"
	userrepo "blog-cms/backend/internal/user/repository"
)

const devPassword = "Secret123"

var devUsers = []struct {
	username string
	email    string
	role     string
}{
	{"admin", "a@x.com", roledomain.RoleAdmin},
	{"editor", "editor@x.com", roledomain.RoleEditor},
	{"author", "author@x.com", roledomain.RoleAuthor},
	{"reader", "reader@x.com", roledomain.RoleReader},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	roles := rolerepo.NewPostgresRepository(conn)
	now := time.Now().UTC()
	roleIDs := make(map[string]string, len(roledomain.DefaultRolePermissions))
	for name, perms := range roledomain.DefaultRolePermissions {
		if err := roles.Create(ctx, &roledomain.Role{ID: uuid.New().String(), Name: name, Permissions: perms, CreatedAt: now}); err != nil {
			log.Fatalf("create role %s: %v", name, err)
		}
		r, err := roles.GetByName(ctx, name)
		if err != nil || r == nil {
			log.Fatalf("load role %s: %v", name, err)
		}
		roleIDs[name] = r.ID
	}

	hasher, err := security.NewPasswordHasher(cfg.PasswordHashAlgo, cfg.BcryptCost, nil)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	users := userrepo.NewPostgresRepository(conn)
	for _, du := range devUsers {
		existing, err := users.GetByEmail(ctx, du.email)
		if err != nil {
			log.Fatalf("seed check %s: %v", du.email, err)
		}
		var userID string
		if existing != nil {
			userID = existing.ID
			log.Printf("user %s exists; skipping", du.email)
		} else {
			userID = uuid.New().String()
			err := db.WithTx(ctx, conn, nil, func(ctx context.Context, tx db.DBTX) error {
				u := &userdomain.User{ID: userID, Username: du.username, Email: du.email, CreatedAt: now, UpdatedAt: now}
				if err := userrepo.NewPostgresRepository(tx).Create(ctx, u); err != nil {
					return err
				}
				return identityrepo.NewPostgresRepository(tx).Create(ctx, &identitydomain.Identity{
					ID:           uuid.New().String(),
					UserID:       userID,
					Provider:     identitydomain.IdentityProviderLocal,
					ProviderID:   du.email,
					PasswordHash: passwordHash,
					CreatedAt:    now,
				})
			})
			if err != nil {
				log.Fatalf("create %s: %v", du.email, err)
			}
		}
		if err := roles.AssignToUser(ctx, userID, roleIDs[du.role]); err != nil {
			log.Fatalf("assign %s to %s: %v", du.role, du.email, err)
		}
	}

	log.Println("Seed completed successfully.")
	for _, du := range devUsers {
		fmt.Printf("%s login: %s / %s\n", du.role, du.email, devPassword)
	}
}
