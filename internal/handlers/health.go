package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digitalservices/queue-service/internal/store"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthCheck reports whether the status store is reachable
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func HealthCheck(st store.StatusStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status: "ok",
		}

		if st == nil {
			response.Database = "not configured"
			c.JSON(http.StatusOK, response)
			return
		}

		if err := st.Ping(c.Request.Context()); err != nil {
			response.Status = "degraded"
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"

		c.JSON(http.StatusOK, response)
	}
}
