// Package middleware holds gin middleware that depends on shared process state.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canvasflow/server/internal/utils/metrics"
)

// unmatchedPath labels requests that hit no route, keeping label cardinality bounded.
const unmatchedPath = "unmatched"

// Metrics returns a middleware that records HTTP metrics.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		// Route pattern, not the concrete path.
		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
