package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"prophub/internal/access"
	"prophub/internal/domain"
	"prophub/internal/domain/models"
	"prophub/internal/domain/services"
	"prophub/internal/handler/sse"
	"prophub/internal/httputil"
	"prophub/internal/routes"
	"prophub/internal/session"
	"prophub/internal/session/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// asUser stands in for the auth middleware: X-Test-User becomes the session user
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get("X-Test-User"); userID != "" {
			r = httputil.WithUserID(r, userID)
		}
		next.ServeHTTP(w, r)
	})
}

type testEnv struct {
	dir   *memory.Directory
	guard *access.Guard
	table *routes.Table
	mux   *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	table, err := routes.Default()
	require.NoError(t, err)

	env := &testEnv{
		dir:   memory.NewDirectory(),
		table: table,
		mux:   http.NewServeMux(),
	}
	env.guard = access.NewGuard(env.dir, time.Second, access.NewMetrics(prometheus.NewRegistry()), testLogger())
	return env
}

func (e *testEnv) do(method, target, userID string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	rec := httptest.NewRecorder()
	asUser(e.mux).ServeHTTP(rec, req)
	return rec
}

func TestRegisterPages(t *testing.T) {
	env := newTestEnv(t)
	env.dir.SetRole("watcher", "house_watcher")
	env.dir.SetRole("tenant", "tenant")
	RegisterPages(env.mux, env.guard, env.table)

	tests := []struct {
		name       string
		user       string
		path       string
		wantStatus int
	}{
		{"watcher denied owner reports", "watcher", "/owner-reports", http.StatusForbidden},
		{"tenant opens owner reports", "tenant", "/owner-reports", http.StatusOK},
		{"watcher denied canonical property management", "watcher", "/property-management", http.StatusForbidden},
		{"watcher opens house watcher alias", "watcher", "/house-watcher/properties", http.StatusOK},
		{"anonymous denied", "", "/dashboard", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.path, tt.user, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var page PageDescriptor
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
				assert.Equal(t, tt.path, page.Path)
			} else {
				assert.Contains(t, rec.Body.String(), "Access Restricted")
			}
		})
	}
}

func TestRegisterPages_AliasRendersCanonicalPage(t *testing.T) {
	env := newTestEnv(t)
	env.dir.SetRole("watcher", "house_watcher")
	RegisterPages(env.mux, env.guard, env.table)

	rec := env.do(http.MethodGet, "/house-watcher/properties", "watcher", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page PageDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, "property-management", page.Name)
	assert.Equal(t, "Property Management", page.Title)
}

func TestAccessHandler_GetResolution(t *testing.T) {
	env := newTestEnv(t)
	env.dir.SetRole("pm", "property_manager")
	env.dir.SetRole("ghost", "janitor")
	h := NewAccessHandler(env.guard, env.table, testLogger())
	env.mux.HandleFunc("GET /api/users/me/resolution", h.GetResolution)

	tests := []struct {
		user string
		want string
	}{
		{"pm", `{"state":"resolved","role":"property_manager"}`},
		{"ghost", `{"state":"unresolved"}`},
		{"", `{"state":"unresolved"}`},
	}
	for _, tt := range tests {
		t.Run("user "+tt.user, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/api/users/me/resolution", tt.user, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestAccessHandler_GetAccess(t *testing.T) {
	env := newTestEnv(t)
	env.dir.SetRole("watcher", "house_watcher")
	h := NewAccessHandler(env.guard, env.table, testLogger())
	env.mux.HandleFunc("GET /api/users/me/access", h.GetAccess)

	rec := env.do(http.MethodGet, "/api/users/me/access", "watcher", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Resolution models.Resolution `json:"resolution"`
		Routes     []struct {
			Path    string `json:"path"`
			Outcome string `json:"outcome"`
		} `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.Resolved(models.RoleHouseWatcher), report.Resolution)
	require.Len(t, report.Routes, len(env.table.Entries()))

	outcomes := map[string]string{}
	for _, r := range report.Routes {
		outcomes[r.Path] = r.Outcome
	}
	assert.Equal(t, "show_fallback", outcomes["/owner-reports"])
	assert.Equal(t, "show_fallback", outcomes["/property-management"])
	assert.Equal(t, "show_content", outcomes["/house-watcher/properties"])
}

type fakeProfileService struct {
	profiles map[uuid.UUID]*models.Profile
	changes  []models.RoleChange
	lastReq  *services.UpdateRoleRequest
	err      error
}

func (s *fakeProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakeProfileService) UpdateRole(ctx context.Context, req *services.UpdateRoleRequest) (*models.Profile, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	id := uuid.MustParse(req.UserID)
	p := &models.Profile{UserID: id, Role: req.Role}
	return p, nil
}

func (s *fakeProfileService) ListRoleChanges(ctx context.Context, userID uuid.UUID) ([]models.RoleChange, error) {
	return s.changes, s.err
}

func TestProfileHandler_GetMe(t *testing.T) {
	env := newTestEnv(t)
	me := uuid.New()
	svc := &fakeProfileService{profiles: map[uuid.UUID]*models.Profile{
		me: {UserID: me, Email: "me@example.com", Role: "client"},
	}}
	h := NewProfileHandler(svc, testLogger())
	env.mux.HandleFunc("GET /api/users/me", h.GetMe)

	rec := env.do(http.MethodGet, "/api/users/me", me.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "me@example.com")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/users/me", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/users/me", uuid.NewString(), nil).Code)
}

func TestProfileHandler_UpdateRole(t *testing.T) {
	env := newTestEnv(t)
	admin := uuid.New()
	tenant := uuid.New()
	env.dir.SetRole(admin.String(), "admin")
	env.dir.SetRole(tenant.String(), "tenant")

	svc := &fakeProfileService{}
	h := NewProfileHandler(svc, testLogger())
	env.mux.Handle("PATCH /api/users/{id}/role",
		env.guard.Require("/api/users/{id}/role", models.NewRoleSet(models.RoleAdmin))(http.HandlerFunc(h.UpdateRole)))

	target := "/api/users/" + tenant.String() + "/role"

	rec := env.do(http.MethodPatch, target, admin.String(), strings.NewReader(`{"role":"owner_investor","expected_role":"tenant"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin.String(), svc.lastReq.ActorID)
	assert.Equal(t, tenant.String(), svc.lastReq.UserID)
	assert.Equal(t, "owner_investor", svc.lastReq.Role)
	assert.Equal(t, "tenant", svc.lastReq.ExpectedRole)

	rec = env.do(http.MethodPatch, target, tenant.String(), strings.NewReader(`{"role":"admin"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPatch, target, admin.String(), strings.NewReader(`{"role":"admin","extra":1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileHandler_UpdateRoleErrors(t *testing.T) {
	env := newTestEnv(t)
	admin := uuid.New()
	h := NewProfileHandler(nil, testLogger())
	env.mux.HandleFunc("PATCH /api/users/{id}/role", h.UpdateRole)
	target := "/api/users/" + uuid.NewString() + "/role"

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"conflict", &domain.RoleConflictError{UserID: "x", CurrentRole: "client"}, http.StatusConflict},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.service = &fakeProfileService{err: tt.err}
			rec := env.do(http.MethodPatch, target, admin.String(), strings.NewReader(`{"role":"client"}`))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestProfileHandler_ListRoleChanges(t *testing.T) {
	env := newTestEnv(t)
	svc := &fakeProfileService{}
	h := NewProfileHandler(svc, testLogger())
	env.mux.HandleFunc("GET /api/users/{id}/role-changes", h.ListRoleChanges)

	rec := env.do(http.MethodGet, "/api/users/"+uuid.NewString()+"/role-changes", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"changes":[]}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/users/not-a-uuid/role-changes", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccessStream_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	h := NewAccessStreamHandler(env.guard, env.table, nil, testLogger())
	env.mux.HandleFunc("GET /api/access/stream", h.Stream)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/access/stream", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/access/stream?path=/nope", "", nil).Code)
}

// readAccessEvent returns the next access event, skipping comments
func readAccessEvent(t *testing.T, r *bufio.Reader) AccessEvent {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var event AccessEvent
			require.NoError(t, json.Unmarshal([]byte(data), &event))
			return event
		}
	}
}

func TestAccessStream_FollowsRoleChanges(t *testing.T) {
	env := newTestEnv(t)
	env.dir.SetRole("u1", "tenant")
	h := NewAccessStreamHandler(env.guard, env.table, &sse.Config{KeepAliveInterval: 20 * time.Millisecond}, testLogger())
	env.mux.HandleFunc("GET /api/access/stream", h.Stream)

	srv := httptest.NewServer(asUser(env.mux))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/access/stream?path=/owner-reports", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "u1")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	// The first event may still be the pending snapshot
	event := readAccessEvent(t, reader)
	for event.Outcome == access.ShowNothing {
		event = readAccessEvent(t, reader)
	}
	assert.Equal(t, "/owner-reports", event.Path)
	assert.Equal(t, access.ShowContent, event.Outcome)

	env.dir.SetRole("u1", "house_watcher")
	require.NoError(t, env.dir.Publish(context.Background(), session.Event{Kind: session.EventProfileUpdated, UserID: "u1"}))

	event = readAccessEvent(t, reader)
	for event.Outcome == access.ShowNothing {
		event = readAccessEvent(t, reader)
	}
	assert.Equal(t, access.ShowFallback, event.Outcome)
	assert.Equal(t, models.Resolved(models.RoleHouseWatcher), event.Resolution)

	resp.Body.Close()
	assert.Eventually(t, func() bool {
		return env.dir.Subscribers("u1") == 0
	}, 2*time.Second, 10*time.Millisecond, "disconnect should release the resolver")
}
