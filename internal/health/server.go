// Package health exposes the two-endpoint HTTP surface of SPEC_FULL.md §6:
// a liveness check and a per-tenant deep readiness probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/shutdown"
	"github.com/orbitalpay/scheduler/internal/tenant"
)

// tenantHealth is the JSON shape of one tenant's readiness entry.
type tenantHealth struct {
	Database        bool `json:"database"`
	Redis           bool `json:"redis"`
	OutgoingRequest bool `json:"outgoing_request"`
}

// Server serves /health and /health/ready, and triggers shutdown when a
// tenant's fast store has been reported unhealthy across failureThreshold
// consecutive readiness requests (§4.6(c)).
type Server struct {
	registry         *tenant.Registry
	shutdown         *shutdown.Source
	log              *logging.Logger
	addr             string
	fastStoreFailure map[tenant.ID]int
	failureThreshold int
}

func New(registry *tenant.Registry, src *shutdown.Source, addr string, log *logging.Logger) *Server {
	return &Server{
		registry:         registry,
		shutdown:         src,
		log:              log.With("role", "health"),
		addr:             addr,
		fastStoreFailure: make(map[tenant.ID]int),
		failureThreshold: 5,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	body := make(map[string]tenantHealth, len(s.registry.Tenants()))
	allHealthy := true

	for _, id := range s.registry.Tenants() {
		session := s.registry.Get(id)
		h := session.Health()
		body[string(id)] = tenantHealth{Database: h.PrimaryStore, Redis: h.FastStore, OutgoingRequest: h.OutgoingRequest}
		if !h.PrimaryStore || !h.FastStore || !h.OutgoingRequest {
			allHealthy = false
		}
		s.trackFastStore(id, h.FastStore)
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// trackFastStore triggers the shutdown source when a tenant's fast store has
// failed its readiness probe failureThreshold times running, per §4.6's
// "failure of a critical health probe" shutdown trigger.
func (s *Server) trackFastStore(id tenant.ID, healthy bool) {
	if healthy {
		s.fastStoreFailure[id] = 0
		return
	}
	s.fastStoreFailure[id]++
	if s.fastStoreFailure[id] >= s.failureThreshold {
		s.log.Error("fast store sustained failure, triggering shutdown", "tenant", id)
		s.shutdown.Trigger("fast_store_sustained_failure")
	}
}

// Run serves the health endpoints until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
