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

// PostgresProfileRepository implements repositories.ProfileRepository
type PostgresProfileRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewProfileRepository creates a new PostgresProfileRepository
func NewProfileRepository(config *RepositoryConfig) repositories.ProfileRepository {
	return &PostgresProfileRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetByUserID retrieves a profile by user ID
func (r *PostgresProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := fmt.Sprintf(`
		SELECT user_id, email, full_name, role, created_at, updated_at
		FROM %s
		WHERE user_id = $1
	`, r.tables.Profiles)

	return r.scanOne(ctx, query, userID)
}

// GetForUpdate retrieves a profile and row-locks it for the current transaction
func (r *PostgresProfileRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := fmt.Sprintf(`
		SELECT user_id, email, full_name, role, created_at, updated_at
		FROM %s
		WHERE user_id = $1
		FOR UPDATE
	`, r.tables.Profiles)

	return r.scanOne(ctx, query, userID)
}

// UpdateRole sets the role tag on a profile
func (r *PostgresProfileRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role string) (*models.Profile, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET role = $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, email, full_name, role, created_at, updated_at
	`, r.tables.Profiles)

	return r.scanOne(ctx, query, userID, role)
}

func (r *PostgresProfileRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*models.Profile, error) {
	var p models.Profile
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, args...).Scan(
		&p.UserID,
		&p.Email,
		&p.FullName,
		&p.Role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("profile: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}

	return &p, nil
}
