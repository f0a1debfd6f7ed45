// Package tenant implements the multi-tenant registry (SPEC_FULL.md §3
// "Tenant registry"): each tenant gets its own primary-store repository,
// fast-store handle, and health state, and Producer/Consumer/Drainer all
// iterate the registry to operate each tenant in isolation.
package tenant

import (
	"context"
	"net/http"
	"sync"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/store/redisstore"
	"github.com/orbitalpay/scheduler/internal/tracker"
)

// ID identifies a tenant.
type ID string

// Session bundles everything a WorkflowHandler needs to act on behalf of one
// tenant: the primary-store repository, the fast-store handle, an outbound
// HTTP client, and a logger. Handlers receive a *Session alongside the
// context. UpdateTrackingData is its only task-mutation helper; the Repo
// and Fast fields are exported, so a handler holding a Session can also
// reach the full repository and the fast store's stream and lock methods.
type Session struct {
	Tenant  ID
	Repo    tracker.Repository
	Fast    *redisstore.Store
	HTTP    *http.Client
	Log     *logging.Logger

	mu      sync.RWMutex
	healthy HealthState
}

// HealthState is the three-boolean deep readiness check of §4.6.
type HealthState struct {
	PrimaryStore    bool
	FastStore       bool
	OutgoingRequest bool
}

// SetHealth updates the tenant's last-observed health state.
func (s *Session) SetHealth(h HealthState) {
	s.mu.Lock()
	s.healthy = h
	s.mu.Unlock()
}

// Health returns the tenant's last-observed health state.
func (s *Session) Health() HealthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

// UpdateTrackingData replaces the tracking_data of the task row with the
// given id.
func (s *Session) UpdateTrackingData(ctx context.Context, id string, data []byte) error {
	t, err := s.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	t.TrackingData = data
	return s.Repo.SaveOutcome(ctx, t)
}
