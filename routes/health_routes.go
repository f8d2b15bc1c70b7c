package routes

import (
	"context"
	"net/http"
	"time"

	"ridestore/internal/utils"
	"ridestore/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// HealthCheck is one named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SetupHealthRoutes registers /health and /metrics on the root router
func SetupHealthRoutes(r *gin.Engine, version string, seq func() uint64, m *metrics.Metrics, checks ...HealthCheck) {
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := gin.H{}
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				components[check.Name] = err.Error()
				continue
			}
			components[check.Name] = "ok"
		}

		health := "healthy"
		if status != http.StatusOK {
			health = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     health,
			"version":    version,
			"seq":        seq(),
			"components": components,
			"timestamp":  time.Now(),
		})
	})

	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.NoRoute(func(c *gin.Context) {
		utils.NotFoundResponse(c, "Route")
	})
}
