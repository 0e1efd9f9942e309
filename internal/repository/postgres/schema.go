package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the prefixed tables if they do not exist.
// Profiles reference Supabase's auth.users so deleting a user removes the profile.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			user_id    UUID PRIMARY KEY REFERENCES auth.users(id) ON DELETE CASCADE,
			email      TEXT NOT NULL DEFAULT '',
			full_name  VARCHAR(255) NOT NULL DEFAULT '',
			role       TEXT NOT NULL DEFAULT 'client',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS %[2]s (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id    UUID NOT NULL REFERENCES %[1]s(user_id) ON DELETE CASCADE,
			old_role   TEXT NOT NULL,
			new_role   TEXT NOT NULL,
			changed_by UUID NOT NULL,
			changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS %[2]s_user_changed_idx ON %[2]s (user_id, changed_at DESC);
	`, tables.Profiles, tables.RoleChanges)

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertProfile writes a profile row, used by seeding
func UpsertProfile(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, userID, email, fullName, role string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			updated_at = NOW()
	`, tables.Profiles)

	if _, err := pool.Exec(ctx, query, userID, email, fullName, role); err != nil {
		return fmt.Errorf("upsert profile %s: %w", email, err)
	}
	return nil
}

// DropTables removes the prefixed tables, children first
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, name := range []string{tables.RoleChanges, tables.Profiles} {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}
