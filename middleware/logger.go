package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// Logger assigns a trace id to every request and logs start and end with it,
// so handler logs can be correlated.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := uuid.NewString()
		c.Set(ctxmanage.TraceIdKey, traceId)

		start := time.Now()
		slog.Info("started",
			slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method),
			slog.String("URL Path", c.Request.URL.Path),
		)

		c.Next()

		slog.Info("completed",
			slog.String(logkey.TraceID, traceId),
			slog.String("URL Path", c.Request.URL.Path),
			slog.Int("Status Code", c.Writer.Status()),
			slog.Int64("duration μs", time.Since(start).Microseconds()),
		)
	}
}
