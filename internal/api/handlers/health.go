package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veilora/veil-oracle-go/internal/cache"
	"github.com/veilora/veil-oracle-go/internal/database"
	"github.com/veilora/veil-oracle-go/internal/services"
)

var startTime = time.Now()

// HealthHandler reports liveness of the oracle and its optional backends.
type HealthHandler struct {
	oracle *services.OracleService
	db     *database.PostgresDB
	redis  *database.RedisClient
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Cache     cache.CacheStats  `json:"cache"`
	Feeds     int               `json:"feeds"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

func NewHealthHandler(oracle *services.OracleService, db *database.PostgresDB, redis *database.RedisClient) *HealthHandler {
	return &HealthHandler{oracle: oracle, db: db, redis: redis}
}

// HealthCheck handles GET /health. Optional backends report "disabled"
// rather than degrading the overall status when they are not configured.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string),
		Cache:     h.oracle.CacheStats(),
		Feeds:     len(h.oracle.Feeds()),
		Version:   "1.0.0",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			response.Services["database"] = "unhealthy: " + err.Error()
			response.Status = "degraded"
		} else {
			response.Services["database"] = "healthy"
		}
	} else {
		response.Services["database"] = "disabled"
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services["redis"] = "unhealthy: " + err.Error()
			response.Status = "degraded"
		} else {
			response.Services["redis"] = "healthy"
		}
	} else {
		response.Services["redis"] = "disabled"
	}

	status := http.StatusOK
	if response.Status == "degraded" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}
