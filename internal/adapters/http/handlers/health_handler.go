// Liveness and readiness probes for the orchestrator.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentwallet/core/internal/adapters/http/middleware"
)

// HealthHandler answers liveness/readiness probes.
type HealthHandler struct {
	pool      *pgxpool.Pool
	version   string
	buildTime string
	startTime time.Time
}

func NewHealthHandler(pool *pgxpool.Pool, version, buildTime string) *HealthHandler {
	return &HealthHandler{pool: pool, version: version, buildTime: buildTime, startTime: time.Now()}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	BuildTime string            `json:"build_time"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type ReadinessResponse struct {
	Ready     bool              `json:"ready"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Health is a basic liveness probe.
//
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		BuildTime: h.buildTime,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	})
}

// Ready checks every dependency the service needs to serve traffic.
//
// @Summary Readiness check
// @Tags Health
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := make(map[string]string)
	allReady := true

	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			allReady = false
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	statusCode := http.StatusOK
	if !allReady {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, ReadinessResponse{Ready: allReady, Checks: checks, Timestamp: time.Now().UTC()})
}

// Live is the bare liveness probe orchestrators poll most often.
//
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// DetailedHealth surfaces connection-pool stats alongside the basic status.
//
// @Summary Detailed health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/detailed [get]
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	checks := make(map[string]string)

	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			stats := h.pool.Stat()
			checks["database"] = "healthy"
			checks["db_total_conns"] = strconv.Itoa(int(stats.TotalConns()))
			checks["db_idle_conns"] = strconv.Itoa(int(stats.IdleConns()))
			checks["db_acquired_conns"] = strconv.Itoa(int(stats.AcquiredConns()))
			middleware.UpdateDBConnections(stats.IdleConns(), stats.AcquiredConns(), stats.MaxConns())
		}
	}

	status := "healthy"
	for _, v := range checks {
		if v == "unhealthy" {
			status = "unhealthy"
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Version:   h.version,
		BuildTime: h.buildTime,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// RegisterRoutes mounts the health endpoints directly on the engine — they
// sit outside API versioning and authentication.
func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/health/detailed", h.DetailedHealth)
	router.GET("/ready", h.Ready)
	router.GET("/live", h.Live)
}
