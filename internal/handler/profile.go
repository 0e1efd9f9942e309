package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"prophub/internal/domain"
	"prophub/internal/domain/models"
	"prophub/internal/domain/services"
	"prophub/internal/httputil"
)

// ProfileHandler serves profiles and role administration
type ProfileHandler struct {
	service services.ProfileService
	logger  *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(service services.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		logger:  logger,
	}
}

// GetMe returns the caller's profile
// GET /api/users/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		handleError(w, err)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, profile)
}

// UpdateRole changes another user's role. Gated to admins at registration.
// PATCH /api/users/{id}/role
func (h *ProfileHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireUser(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req services.UpdateRoleRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	req.ActorID = actorID.String()
	req.UserID = r.PathValue("id")

	profile, err := h.service.UpdateRole(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, profile)
}

// ListRoleChanges returns a user's role history, newest first
// GET /api/users/{id}/role-changes
func (h *ProfileHandler) ListRoleChanges(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	changes, err := h.service.ListRoleChanges(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list role changes", "user_id", userID, "error", err)
		handleError(w, err)
		return
	}

	if changes == nil {
		changes = []models.RoleChange{}
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
	})
}
