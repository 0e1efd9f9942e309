package handler

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"prophub/internal/domain"
	"prophub/internal/httputil"
)

// requireUser returns the signed-in user's ID, or ErrUnauthorized
func requireUser(r *http.Request) (uuid.UUID, error) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		return uuid.Nil, fmt.Errorf("sign in required: %w", domain.ErrUnauthorized)
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("session user id %q: %w", userID, domain.ErrUnauthorized)
	}
	return id, nil
}

// parseUUID reads a UUID path parameter
func parseUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, name, raw)
	}
	return id, nil
}
