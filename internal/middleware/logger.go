package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/metrics"
)

// quietRoutes are polled by probes and scrapers; they log at debug level.
var quietRoutes = map[string]bool{"/health": true, "/metrics": true}

// Logger logs each request through zap and records it in the HTTP metrics.
// The WebSocket upgrade is logged when the connection closes.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(method, route).Observe(latency.Seconds())

		level := zap.InfoLevel
		if quietRoutes[route] {
			level = zap.DebugLevel
		} else if status >= 500 {
			level = zap.WarnLevel
		}
		logger.Log(level, "request",
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("route", route),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
