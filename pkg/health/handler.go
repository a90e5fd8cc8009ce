// Package health exposes liveness and readiness probes shared by all
// service binaries.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/database"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/redis"
)

// Handler handles health check endpoints.
type Handler struct {
	db     *database.PostgresDB
	redis  *redis.Client
	outbox outbox.Store
}

// NewHandler creates a Handler. Any dependency may be nil.
func NewHandler(db *database.PostgresDB, rdb *redis.Client, store outbox.Store) *Handler {
	return &Handler{db: db, redis: rdb, outbox: store}
}

// RegisterRoutes registers the probe routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

// HealthResponse represents the liveness response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents the readiness response.
type ReadyResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Components    map[string]string `json:"components"`
	OutboxPending int               `json:"outbox_pending,omitempty"`
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready is the readiness probe. It checks every configured dependency.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			components["database"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components["database"] = "healthy"
		}
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			components["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components["redis"] = "healthy"
		}
	}

	resp := ReadyResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	if h.outbox != nil {
		if pending, err := h.outbox.PendingCount(ctx); err == nil {
			resp.OutboxPending = pending
		}
	}

	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}
