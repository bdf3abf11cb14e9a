package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mes-platform/production-service/pkg/metrics"
)

// MetricsMiddleware records request count, latency and in-flight requests by
// route template, so /jobs/:jobId is one series. Probes are not counted.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		start := time.Now()
		defer func() {
			m.DecrementHTTPRequestsInFlight()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
		}()

		c.Next()
	}
}

// MetricsEndpoint serves the Prometheus registry
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
