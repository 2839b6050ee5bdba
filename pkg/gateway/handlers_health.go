package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riakgu/strym/pkg/version"
)

// handleHealth handles GET /health. Exempt from both authentication and
// rate limiting.
func (g *Gateway) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := g.health.Health(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"app_name": g.appName,
			"version":  version.Full(),
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"app_name":        g.appName,
		"version":         version.Full(),
		"database":        dbHealth,
		"active_sessions": g.registry.Count(),
	})
}
