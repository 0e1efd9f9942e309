package handler

import (
	"log/slog"
	"net/http"

	"prophub/internal/access"
	"prophub/internal/domain/models"
	"prophub/internal/httputil"
	"prophub/internal/routes"
)

// AccessHandler reports how the caller's role resolves and what it opens
type AccessHandler struct {
	guard  *access.Guard
	table  *routes.Table
	logger *slog.Logger
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(guard *access.Guard, table *routes.Table, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{
		guard:  guard,
		table:  table,
		logger: logger,
	}
}

// RouteAccess is the decision for one route
type RouteAccess struct {
	Path    string         `json:"path"`
	Page    string         `json:"page"`
	Title   string         `json:"title"`
	Outcome access.Outcome `json:"outcome"`
}

// AccessReport is the caller's resolution and every route's outcome for it
type AccessReport struct {
	Resolution models.Resolution `json:"resolution"`
	Routes     []RouteAccess     `json:"routes"`
}

// GetResolution returns the caller's resolution. A lookup that outlasts the
// resolve timeout is reported as pending.
// GET /api/users/me/resolution
func (h *AccessHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.guard.Resolve(r))
}

// GetAccess evaluates every route in the policy for the caller
// GET /api/users/me/access
func (h *AccessHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	res := h.guard.Resolve(r)

	entries := h.table.Entries()
	report := AccessReport{
		Resolution: res,
		Routes:     make([]RouteAccess, 0, len(entries)),
	}
	for _, e := range entries {
		report.Routes = append(report.Routes, RouteAccess{
			Path:    e.Path,
			Page:    e.Page,
			Title:   e.Title,
			Outcome: access.Decide(e.Allowed, res),
		})
	}

	httputil.RespondJSON(w, http.StatusOK, report)
}
