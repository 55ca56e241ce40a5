package handlers

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id in and out.
const RequestIDHeader = "X-Request-Id"

// RequestLogger tags each request with a correlation id (reusing an inbound
// X-Request-Id) and logs one line per request once it completes.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		logger.InfoContext(c.Request.Context(), "http request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// FlushMetrics ships the counters a request produced once its response is
// written, off the request path.
func FlushMetrics(m MetricsFlusher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.FlushAsync(c.Request.Context())
	}
}
