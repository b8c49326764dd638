package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sso-registry/sso/internal/telemetry"
)

// noRoute labels requests that matched no route so unknown paths do not
// inflate label cardinality.
const noRoute = "<no-route>"

// MetricsMiddleware records telemetry.HTTPRequestsTotal and
// telemetry.HTTPRequestDuration for every request. The path label is the
// matched route template (/v1/key/:key_id), never the raw URL.
//
// Register it after gin.Recovery() so the status written by a recovered panic
// is counted.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
