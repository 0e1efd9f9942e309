package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"prophub/internal/domain"
	"prophub/internal/domain/models"
	"prophub/internal/domain/repositories"
	"prophub/internal/domain/services"
	"prophub/internal/session"
	"prophub/internal/session/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.Profile
}

func (r *fakeProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) GetForUpdate(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *fakeProfileRepo) UpdateRole(ctx context.Context, userID uuid.UUID, role string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

type fakeAuditRepo struct {
	changes []models.RoleChange
	err     error
}

func (r *fakeAuditRepo) Record(ctx context.Context, change *models.RoleChange) error {
	if r.err != nil {
		return r.err
	}
	change.ID = uuid.New()
	change.ChangedAt = time.Now()
	r.changes = append([]models.RoleChange{*change}, r.changes...)
	return nil
}

func (r *fakeAuditRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.RoleChange, error) {
	var out []models.RoleChange
	for _, c := range r.changes {
		if c.UserID == userID && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeTxManager runs fn inline; it only counts calls
type fakeTxManager struct{ calls int }

func (m *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	m.calls++
	return fn(ctx)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event session.Event) error {
	return errors.New("redis unavailable")
}

type fixture struct {
	svc      services.ProfileService
	profiles *fakeProfileRepo
	audit    *fakeAuditRepo
	tx       *fakeTxManager
	dir      *memory.Directory
	admin    uuid.UUID
	tenant   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		profiles: &fakeProfileRepo{profiles: map[uuid.UUID]*models.Profile{}},
		audit:    &fakeAuditRepo{},
		tx:       &fakeTxManager{},
		dir:      memory.NewDirectory(),
		admin:    uuid.New(),
		tenant:   uuid.New(),
	}
	f.profiles.profiles[f.admin] = &models.Profile{UserID: f.admin, Email: "admin@example.com", Role: "admin"}
	f.profiles.profiles[f.tenant] = &models.Profile{UserID: f.tenant, Email: "tenant@example.com", Role: "tenant"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewProfileService(f.profiles, f.audit, f.tx, f.dir, logger)
	return f
}

func TestProfileService_UpdateRole(t *testing.T) {
	f := newFixture(t)
	events, unsubscribe := f.dir.ForUser(f.tenant.String()).Subscribe()
	defer unsubscribe()

	updated, err := f.svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID: f.admin.String(),
		UserID:  f.tenant.String(),
		Role:    "owner_investor",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner_investor", updated.Role)
	assert.Equal(t, 1, f.tx.calls)

	require.Len(t, f.audit.changes, 1)
	change := f.audit.changes[0]
	assert.Equal(t, "tenant", change.OldRole)
	assert.Equal(t, "owner_investor", change.NewRole)
	assert.Equal(t, f.admin, change.ChangedBy)

	select {
	case ev := <-events:
		assert.Equal(t, session.EventProfileUpdated, ev.Kind)
		assert.Equal(t, f.tenant.String(), ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a profile_updated event")
	}
}

func TestProfileService_UpdateRoleUnchangedIsNoop(t *testing.T) {
	f := newFixture(t)
	events, unsubscribe := f.dir.ForUser(f.tenant.String()).Subscribe()
	defer unsubscribe()

	updated, err := f.svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID: f.admin.String(),
		UserID:  f.tenant.String(),
		Role:    "tenant",
	})
	require.NoError(t, err)
	assert.Equal(t, "tenant", updated.Role)
	assert.Empty(t, f.audit.changes)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestProfileService_UpdateRoleValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  services.UpdateRoleRequest
	}{
		{"missing role", services.UpdateRoleRequest{ActorID: f.admin.String(), UserID: f.tenant.String()}},
		{"unknown role", services.UpdateRoleRequest{ActorID: f.admin.String(), UserID: f.tenant.String(), Role: "janitor"}},
		{"wrong case role", services.UpdateRoleRequest{ActorID: f.admin.String(), UserID: f.tenant.String(), Role: "Tenant"}},
		{"bad user id", services.UpdateRoleRequest{ActorID: f.admin.String(), UserID: "not-a-uuid", Role: "tenant"}},
		{"missing actor", services.UpdateRoleRequest{UserID: f.tenant.String(), Role: "tenant"}},
		{"unknown expected role", services.UpdateRoleRequest{ActorID: f.admin.String(), UserID: f.tenant.String(), Role: "tenant", ExpectedRole: "root"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.svc.UpdateRole(context.Background(), &req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 0, f.tx.calls)
}

func TestProfileService_UpdateOwnRoleForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID: f.admin.String(),
		UserID:  f.admin.String(),
		Role:    "tenant",
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestProfileService_UpdateRoleConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID:      f.admin.String(),
		UserID:       f.tenant.String(),
		Role:         "client",
		ExpectedRole: "contractor",
	})

	var conflict *domain.RoleConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "tenant", conflict.CurrentRole)
	assert.Empty(t, f.audit.changes)
}

func TestProfileService_UpdateRoleMissingProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID: f.admin.String(),
		UserID:  uuid.New().String(),
		Role:    "client",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProfileService_AuditFailureFailsUpdate(t *testing.T) {
	f := newFixture(t)
	f.audit.err = errors.New("insert failed")

	_, err := f.svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID: f.admin.String(),
		UserID:  f.tenant.String(),
		Role:    "client",
	})
	assert.Error(t, err)
}

func TestProfileService_PublishFailureDoesNotFailUpdate(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewProfileService(f.profiles, f.audit, f.tx, failingPublisher{}, logger)

	updated, err := svc.UpdateRole(context.Background(), &services.UpdateRoleRequest{
		ActorID: f.admin.String(),
		UserID:  f.tenant.String(),
		Role:    "leasing_agent",
	})
	require.NoError(t, err)
	assert.Equal(t, "leasing_agent", updated.Role)
}

func TestProfileService_ListRoleChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, role := range []string{"client", "contractor"} {
		_, err := f.svc.UpdateRole(ctx, &services.UpdateRoleRequest{
			ActorID: f.admin.String(),
			UserID:  f.tenant.String(),
			Role:    role,
		})
		require.NoError(t, err)
	}

	changes, err := f.svc.ListRoleChanges(ctx, f.tenant)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "contractor", changes[0].NewRole)
	assert.Equal(t, "client", changes[1].NewRole)
}
