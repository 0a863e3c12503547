package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/observability"
)

// LoggingMiddleware emits one structured log line per request and feeds the
// request-duration histogram. Server errors log at error level so a failing
// handler stands out without log filtering.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", c.Writer.Size(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}
		if status >= 500 {
			slog.Error("request", attrs...)
		} else {
			slog.Info("request", attrs...)
		}

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(status),
		).Observe(elapsed.Seconds())
	}
}
