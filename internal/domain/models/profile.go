package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user row that carries the user's role tag.
// Role is stored as the raw tag so that rows written by other clients with an
// unknown tag can still be read; callers parse it with ParseRole.
type Profile struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleChange is one entry of the role audit trail
type RoleChange struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	OldRole   string    `json:"old_role" db:"old_role"`
	NewRole   string    `json:"new_role" db:"new_role"`
	ChangedBy uuid.UUID `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}
