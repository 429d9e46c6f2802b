package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tourbook/internal/database"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// HealthChecker aggregates the database check with optional dependency probes.
// Probe failures degrade the status; a database failure makes it unhealthy.
type HealthChecker struct {
	db     *database.DB
	probes map[string]Probe
}

func NewHealthChecker(db *database.DB, probes map[string]Probe) *HealthChecker {
	return &HealthChecker{db: db, probes: probes}
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string                      `json:"status"`
	Database     *database.HealthCheck       `json:"database,omitempty"`
	Dependencies map[string]dependencyStatus `json:"dependencies,omitempty"`
	Timestamp    time.Time                   `json:"timestamp"`
}

// Health - GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Timestamp: time.Now()}
	code := http.StatusOK

	if h.health != nil && h.health.db != nil {
		hc := h.health.db.HealthCheck(ctx)
		resp.Database = &hc
		if hc.Status != "healthy" {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	if h.health != nil && len(h.health.probes) > 0 {
		resp.Dependencies = make(map[string]dependencyStatus, len(h.health.probes))
		for name, probe := range h.health.probes {
			if err := probe(ctx); err != nil {
				resp.Dependencies[name] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
				if resp.Status == "healthy" {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Dependencies[name] = dependencyStatus{Status: "healthy"}
		}
	}

	c.JSON(code, resp)
}
