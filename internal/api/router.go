package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/gray-logic-connector/internal/auth"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermAttemptsRead)).Get("/attempts", s.handleListAttempts)

			r.Route("/connection", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermConnectionRead)).Get("/", s.handleGetConnection)
				r.With(s.requirePermission(auth.PermConnectionOperate)).Post("/connect", s.handleConnect)
			})
		})
	})

	return r
}

// Health check values.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth reports the MQTT session and any wired storage backends.
// It answers 503 when any check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  healthOK,
		Version: s.version,
		Checks:  make(map[string]string, 3),
	}

	check := func(name string, hc HealthChecker) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = healthDegraded
			return
		}
		resp.Checks[name] = healthOK
	}

	check("mqtt", s.connector.Handler())
	if s.database != nil {
		check("database", s.database)
	}
	if s.influxdb != nil {
		check("influxdb", s.influxdb)
	}

	status := http.StatusOK
	if resp.Status != healthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
