package middleware

import (
	"time"

	"github.com/edgewatch/edgewatch/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		metrics.RequestDuration.WithLabelValues(c.FullPath()).Observe(duration)
	}
}
