package handlers

import (
	"context"
	"net/http"
	"time"

	"clinic-portal-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 3 * time.Second

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks    map[string]store.Pinger
	startTime time.Time
}

// NewHealthHandler builds a HealthHandler. Each named pinger is checked by
// Ready; nil pingers are skipped.
func NewHealthHandler(checks map[string]store.Pinger) *HealthHandler {
	active := make(map[string]store.Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandler{checks: active, startTime: time.Now()}
}

// HealthResponse follows Kubernetes health check conventions.
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health confirms the process is serving.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "UP",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    map[string]Check{"process": {Status: "UP"}},
	})
}

// Ready reports 503 while any dependency is unreachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status, httpStatus := "UP", http.StatusOK
	checks := make(map[string]Check, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			checks[name] = Check{Status: "DOWN", Message: "Cannot connect to " + name}
			status, httpStatus = "DOWN", http.StatusServiceUnavailable
			continue
		}
		checks[name] = Check{Status: "UP"}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}
