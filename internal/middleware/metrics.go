package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/regenworks/regenworks-api/internal/service"
)

// Metrics records latency and status for every request against the matched
// route template, so /projects/:projectId stays one series regardless of ID.
func Metrics(m *service.MetricsService) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// unmatched routes (404s) fall back to the raw path
			route = c.Request.URL.Path
		}
		m.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
