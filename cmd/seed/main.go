package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"prophub/internal/auth"
	"prophub/internal/config"
	"prophub/internal/domain/models"
	"prophub/internal/repository/postgres"

	"github.com/joho/godotenv"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't create demo users")
	password := flag.String("password", "prophub-demo", "Password for every demo user")
	domain := flag.String("email-domain", "prophub.test", "Email domain for demo users")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.SessionBackend != config.BackendSupabase {
		log.Fatalf("seeding needs SESSION_BACKEND=supabase, got %q", cfg.SessionBackend)
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: cannot run --drop-tables in the production environment")
	}
	if cfg.SupabaseKey == "" && !*schemaOnly {
		log.Fatalf("SUPABASE_KEY (service role) is required to create users")
	}

	log.Printf("Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL, postgres.PoolSettings{MaxConns: 2, MinConns: 1})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := postgres.DropTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		return
	}

	admin := auth.NewAdminClient(cfg.SupabaseURL, cfg.SupabaseKey)
	roles := models.AllRoles()

	for i, role := range roles {
		tag := role.String()
		email := fmt.Sprintf("%s@%s", strings.ReplaceAll(tag, "_", "-"), *domain)

		// Recreate so reruns reset passwords and metadata
		if err := admin.DeleteUserByEmail(ctx, email); err != nil {
			log.Fatalf("Failed to remove existing user %s: %v", email, err)
		}
		userID, err := admin.CreateUser(ctx, email, *password, tag)
		if err != nil {
			log.Fatalf("Failed to create user %s: %v", email, err)
		}

		if err := postgres.UpsertProfile(ctx, pool, tables, userID, email, displayName(tag), tag); err != nil {
			log.Fatalf("Failed to write profile: %v", err)
		}

		log.Printf("Created user %d/%d: %s (%s, ID: %s)", i+1, len(roles), email, tag, userID)
	}

	log.Println("Seeding complete")
}

// displayName turns a role tag into "Demo Property Manager"
func displayName(tag string) string {
	words := strings.Split(tag, "_")
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return "Demo " + strings.Join(words, " ")
}
