package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/shutdown"
	"github.com/orbitalpay/scheduler/internal/tenant"
)

func testLogger() *logging.Logger {
	return logging.New("test", logging.Config{Silent: true})
}

func TestHealth_LivenessAlwaysOK(t *testing.T) {
	registry := tenant.NewRegistry()
	src := shutdown.NewSource(context.Background())
	defer src.Stop()
	s := New(registry, src, ":0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_ReadinessReflectsAllTenantsHealthy(t *testing.T) {
	registry := tenant.NewRegistry()
	session := &tenant.Session{Tenant: "tenant-a", Log: testLogger()}
	session.SetHealth(tenant.HealthState{PrimaryStore: true, FastStore: true, OutgoingRequest: true})
	registry.Register(session)

	src := shutdown.NewSource(context.Background())
	defer src.Stop()
	s := New(registry, src, ":0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]tenantHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["tenant-a"].Database)
	assert.True(t, body["tenant-a"].Redis)
}

func TestHealth_ReadinessDegradesOnUnhealthyTenant(t *testing.T) {
	registry := tenant.NewRegistry()
	session := &tenant.Session{Tenant: "tenant-a", Log: testLogger()}
	session.SetHealth(tenant.HealthState{PrimaryStore: true, FastStore: false, OutgoingRequest: true})
	registry.Register(session)

	src := shutdown.NewSource(context.Background())
	defer src.Stop()
	s := New(registry, src, ":0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_SustainedFastStoreFailureTriggersShutdown(t *testing.T) {
	registry := tenant.NewRegistry()
	session := &tenant.Session{Tenant: "tenant-a", Log: testLogger()}
	session.SetHealth(tenant.HealthState{PrimaryStore: true, FastStore: false, OutgoingRequest: true})
	registry.Register(session)

	src := shutdown.NewSource(context.Background())
	defer src.Stop()
	s := New(registry, src, ":0", testLogger())
	s.failureThreshold = 3

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		rec := httptest.NewRecorder()
		s.router().ServeHTTP(rec, req)
	}

	select {
	case <-src.Context().Done():
	default:
		t.Fatal("expected shutdown to be triggered after sustained fast-store failure")
	}
	assert.Equal(t, "fast_store_sustained_failure", src.Reason())
}
