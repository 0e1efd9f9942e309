package services

import (
	"context"

	"github.com/google/uuid"
	"prophub/internal/domain/models"
)

// UpdateRoleRequest is the payload of a role change.
// ActorID and UserID are filled in by the handler from the session and path.
type UpdateRoleRequest struct {
	ActorID string `json:"-"`
	UserID  string `json:"-"`
	Role    string `json:"role"`
	// ExpectedRole guards against lost updates when set
	ExpectedRole string `json:"expected_role,omitempty"`
}

// ProfileService defines profile and role administration
type ProfileService interface {
	// GetProfile returns the profile for userID
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// UpdateRole changes a user's role, records the change and notifies
	// live sessions of that user
	UpdateRole(ctx context.Context, req *UpdateRoleRequest) (*models.Profile, error)

	// ListRoleChanges returns the user's role history, newest first
	ListRoleChanges(ctx context.Context, userID uuid.UUID) ([]models.RoleChange, error)
}
