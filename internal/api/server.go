// Package api is the HTTP surface of the risk engine. It exposes batch
// submission, run registry lookups and hazard cache invalidation on a chi
// router, with structured logging, panic recovery and request tracing
// applied before requests reach the handlers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"shakerisk/internal/cache"
	"shakerisk/internal/config"
	"shakerisk/internal/db"
	"shakerisk/internal/engine"
)

// healthCheckTimeout bounds the combined runtime of all health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem check (registry database, snapshot store)
// exposed through the health endpoint.
type HealthProbe interface {
	// Name identifies the probe in the health response.
	Name() string

	// Check reports whether the subsystem is operational. It must respect
	// the context deadline.
	Check(ctx context.Context) error
}

// Server bundles the API dependencies. The run registry is optional: when
// nil, the registry routes are not mounted and the service runs
// snapshot-only.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	hazards *cache.Controller
	runs    *db.CalcRepository
	probes  []HealthProbe
	logger  *slog.Logger

	router *chi.Mux
}

// NewServer constructs the API server and mounts its routes. The engine and
// hazard controller are mandatory; runs and probes may be nil.
func NewServer(cfg *config.Config, eng *engine.Engine, hazards *cache.Controller, runs *db.CalcRepository, probes []HealthProbe, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("api: config must not be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("api: engine must not be nil")
	}
	if hazards == nil {
		return nil, fmt.Errorf("api: hazard controller must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		engine:  eng,
		hazards: hazards,
		runs:    runs,
		probes:  probes,
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	r := s.router

	r.Use(s.Recoverer)
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.handleSubmitRun)
		r.Delete("/hazard/{cacheKey}", s.handleInvalidate)

		if s.runs != nil {
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
		}
	})
}

// componentStatus is the health state of one subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the body of the health endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// handleHealth runs all probes concurrently under a shared deadline. Any
// failing or timed-out probe turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Version: s.cfg.Build.Version}

	if len(s.probes) == 0 {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(s.probes))
		wg      sync.WaitGroup
	)
	for _, probe := range s.probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			err := p.Check(ctx)
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp.Components = make(map[string]componentStatus, len(s.probes))
	healthy := true
	for _, probe := range s.probes {
		name := probe.Name()
		err, completed := results[name]
		switch {
		case !completed:
			healthy = false
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			healthy = false
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			resp.Components[name] = componentStatus{Status: "healthy"}
		}
	}

	if healthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
