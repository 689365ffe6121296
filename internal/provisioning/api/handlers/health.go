package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheckTimeout is the maximum time allowed for readiness checks, so a
// slow database cannot block health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// Pinger is the readiness probe's view of the directory store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the directory store reachable?
type HealthHandler struct {
	store     Pinger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. The store may be nil, in
// which case readiness always reports unhealthy.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		startTime: time.Now(),
	}
}

// healthResponse is the body of health probe responses.
type healthResponse struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func healthy(data interface{}) healthResponse {
	return healthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthy(errMsg string) healthResponse {
	return healthResponse{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. Designed for Kubernetes
// liveness probes and should always succeed as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSON(w, http.StatusOK, healthy(map[string]interface{}{
		"service":    "driftfs",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
// Returns 200 OK if the directory store answers a ping.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthy("directory store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthy("directory store unreachable: "+err.Error()))
		return
	}

	WriteJSON(w, http.StatusOK, healthy(map[string]interface{}{
		"database": "ok",
	}))
}
