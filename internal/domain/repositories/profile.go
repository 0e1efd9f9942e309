package repositories

import (
	"context"

	"github.com/google/uuid"
	"prophub/internal/domain/models"
)

// ProfileRepository defines data access for user profiles
type ProfileRepository interface {
	// GetByUserID retrieves a profile.
	// Returns domain.ErrNotFound if the user has no profile row.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// GetForUpdate retrieves a profile and locks its row until the
	// surrounding transaction ends. Must be called inside ExecTx.
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// UpdateRole stores a new role tag and bumps updated_at.
	// Returns domain.ErrNotFound if the profile does not exist.
	UpdateRole(ctx context.Context, userID uuid.UUID, role string) (*models.Profile, error)
}

// RoleAuditRepository stores the role change trail
type RoleAuditRepository interface {
	// Record appends a role change; ID and ChangedAt are filled in
	Record(ctx context.Context, change *models.RoleChange) error

	// ListByUser returns a user's role changes, newest first
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.RoleChange, error)
}
