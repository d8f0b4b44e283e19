package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/monitoring"
	"github.com/prismarine/craftd/pkg/logger"
)

// RequestLogger logs every HTTP request and feeds the API metrics.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = path
		}

		monitoring.APIRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(status)).Inc()
		monitoring.APIRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(latency.Seconds())

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"ip":         c.ClientIP(),
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", nil, fields)
		case status >= 400:
			logger.Warn("HTTP request", fields)
		default:
			logger.Info("HTTP request", fields)
		}
	}
}
