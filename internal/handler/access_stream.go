package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"prophub/internal/access"
	"prophub/internal/domain/models"
	"prophub/internal/handler/sse"
	"prophub/internal/httputil"
	"prophub/internal/routes"
)

// AccessEvent is the payload of an "access" SSE event
type AccessEvent struct {
	Path       string            `json:"path"`
	Resolution models.Resolution `json:"resolution"`
	Outcome    access.Outcome    `json:"outcome"`
}

// AccessStreamHandler pushes a route's outcome to the client every time the
// caller's role resolution changes
type AccessStreamHandler struct {
	guard  *access.Guard
	table  *routes.Table
	config *sse.Config
	logger *slog.Logger
}

// NewAccessStreamHandler creates a new access stream handler
func NewAccessStreamHandler(guard *access.Guard, table *routes.Table, config *sse.Config, logger *slog.Logger) *AccessStreamHandler {
	if config == nil {
		config = sse.DefaultConfig()
	}
	return &AccessStreamHandler{
		guard:  guard,
		table:  table,
		config: config,
		logger: logger,
	}
}

// Stream keeps one resolver open for the connection and emits an access
// event for the initial state and for every transition after it.
// GET /api/access/stream?path=<route>
func (h *AccessStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		httputil.RespondError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	entry, ok := h.table.Lookup(path)
	if !ok {
		httputil.RespondError(w, http.StatusNotFound, "no access policy for "+path)
		return
	}

	ctx := r.Context()
	tracker := h.guard.Track(ctx, r)
	defer tracker.Close()

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	clientID := uuid.NewString()
	logger := h.logger.With("client_id", clientID, "path", path, "user_id", httputil.GetUserID(r))
	logger.Debug("access stream opened")
	defer logger.Debug("access stream closed")

	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	keepAliveStopped := keepAlive.Start(writer, logger)
	defer keepAlive.Stop()

	emit := func(res models.Resolution) bool {
		outcome := access.Decide(entry.Allowed, res)
		h.guard.Observe(entry.Path, outcome)
		event := AccessEvent{Path: entry.Path, Resolution: res, Outcome: outcome}
		if err := writer.WriteEvent("access", event); err != nil {
			logger.Debug("client gone during event write", "error", err)
			return false
		}
		return true
	}

	// Drain a transition that raced the initial snapshot so it is not sent twice
	last := tracker.State()
	select {
	case last = <-tracker.Updates():
	default:
	}
	if !emit(last) {
		return
	}

	updates := tracker.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAliveStopped:
			return
		case res, ok := <-updates:
			if !ok {
				return
			}
			if res == last {
				continue
			}
			last = res
			if !emit(res) {
				return
			}
		}
	}
}
