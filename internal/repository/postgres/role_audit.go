package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"prophub/internal/domain"
	"prophub/internal/domain/models"
	"prophub/internal/domain/repositories"
)

// PostgresRoleAuditRepository implements repositories.RoleAuditRepository
type PostgresRoleAuditRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewRoleAuditRepository creates a new PostgresRoleAuditRepository
func NewRoleAuditRepository(config *RepositoryConfig) repositories.RoleAuditRepository {
	return &PostgresRoleAuditRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Record inserts a role change row
func (r *PostgresRoleAuditRepository) Record(ctx context.Context, change *models.RoleChange) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, old_role, new_role, changed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, changed_at
	`, r.tables.RoleChanges)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		change.UserID,
		change.OldRole,
		change.NewRole,
		change.ChangedBy,
	).Scan(&change.ID, &change.ChangedAt)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("record role change for %s: %w", change.UserID, domain.ErrNotFound)
		}
		return fmt.Errorf("record role change: %w", err)
	}

	return nil
}

// ListByUser returns the newest role changes for a user
func (r *PostgresRoleAuditRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.RoleChange, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, old_role, new_role, changed_by, changed_at
		FROM %s
		WHERE user_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, r.tables.RoleChanges)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list role changes: %w", err)
	}
	defer rows.Close()

	changes := []models.RoleChange{}
	for rows.Next() {
		var c models.RoleChange
		if err := rows.Scan(&c.ID, &c.UserID, &c.OldRole, &c.NewRole, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan role change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role changes: %w", err)
	}

	return changes, nil
}
