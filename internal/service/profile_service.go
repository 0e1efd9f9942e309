package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"prophub/internal/config"
	"prophub/internal/domain"
	"prophub/internal/domain/models"
	"prophub/internal/domain/repositories"
	"prophub/internal/domain/services"
	"prophub/internal/session"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ProfileService implements services.ProfileService
type ProfileService struct {
	profileRepo repositories.ProfileRepository
	auditRepo   repositories.RoleAuditRepository
	txManager   repositories.TransactionManager
	publisher   session.Publisher
	logger      *slog.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(
	profileRepo repositories.ProfileRepository,
	auditRepo repositories.RoleAuditRepository,
	txManager repositories.TransactionManager,
	publisher session.Publisher,
	logger *slog.Logger,
) services.ProfileService {
	return &ProfileService{
		profileRepo: profileRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger,
	}
}

// GetProfile retrieves a profile
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return s.profileRepo.GetByUserID(ctx, userID)
}

// UpdateRole changes a user's role.
// The profile row is locked, updated and audited in one transaction; live
// sessions are notified after commit.
func (s *ProfileService) UpdateRole(ctx context.Context, req *services.UpdateRoleRequest) (*models.Profile, error) {
	if err := s.validateUpdateRoleRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	userID := uuid.MustParse(req.UserID)
	actorID := uuid.MustParse(req.ActorID)

	if userID == actorID {
		return nil, fmt.Errorf("cannot change your own role: %w", domain.ErrForbidden)
	}

	var (
		updated *models.Profile
		oldRole string
	)
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		current, err := s.profileRepo.GetForUpdate(txCtx, userID)
		if err != nil {
			return err
		}
		oldRole = current.Role

		if req.ExpectedRole != "" && current.Role != req.ExpectedRole {
			return &domain.RoleConflictError{UserID: req.UserID, CurrentRole: current.Role}
		}

		if current.Role == req.Role {
			updated = current
			return nil
		}

		updated, err = s.profileRepo.UpdateRole(txCtx, userID, req.Role)
		if err != nil {
			return err
		}

		return s.auditRepo.Record(txCtx, &models.RoleChange{
			UserID:    userID,
			OldRole:   current.Role,
			NewRole:   req.Role,
			ChangedBy: actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	if oldRole == req.Role {
		s.logger.Debug("role unchanged", "user_id", userID, "role", req.Role)
		return updated, nil
	}

	// The change is committed; a failed notification only delays live
	// sessions until their next lookup.
	event := session.Event{Kind: session.EventProfileUpdated, UserID: req.UserID}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish role change",
			"user_id", userID,
			"error", err,
		)
	}

	s.logger.Info("role updated",
		"user_id", userID,
		"old_role", oldRole,
		"new_role", req.Role,
		"changed_by", actorID,
	)

	return updated, nil
}

// ListRoleChanges returns a user's role history
func (s *ProfileService) ListRoleChanges(ctx context.Context, userID uuid.UUID) ([]models.RoleChange, error) {
	changes, err := s.auditRepo.ListByUser(ctx, userID, config.MaxRoleHistoryEntries)
	if err != nil {
		return nil, fmt.Errorf("list role changes: %w", err)
	}
	return changes, nil
}

// validateUpdateRoleRequest validates a role change request
func (s *ProfileService) validateUpdateRoleRequest(req *services.UpdateRoleRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ActorID, validation.Required, is.UUID),
		validation.Field(&req.UserID, validation.Required, is.UUID),
		validation.Field(&req.Role, validation.Required, validation.By(validateRoleTag)),
		validation.Field(&req.ExpectedRole, validation.By(validateRoleTag)),
	)
}

// validateRoleTag accepts empty strings (Required handles those) and known tags
func validateRoleTag(value interface{}) error {
	tag, ok := value.(string)
	if !ok {
		return fmt.Errorf("role must be a string")
	}
	if tag == "" {
		return nil
	}
	if _, ok := models.ParseRole(tag); !ok {
		return fmt.Errorf("unknown role %q", tag)
	}
	return nil
}
