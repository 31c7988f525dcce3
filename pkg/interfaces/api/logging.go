package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// Logging is a gin middleware that logs request details along with tracing information.
// Requests below 500 are logged at V(2); health checkers hit these endpoints constantly.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		logger := klog.V(2)
		if c.Writer.Status() >= 500 {
			logger = klog.V(0)
		}
		logger.InfoS("HTTP request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"latency", time.Since(start).String(),
			"traceID", sc.TraceID().String(),
			"spanID", sc.SpanID().String(),
		)
	}
}
