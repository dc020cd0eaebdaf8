package ctxmanage

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceIdKey = "trace_id"

// GetTraceIdOfRequest returns the trace id set by the logger middleware,
// generating one if the middleware did not run (direct handler tests).
func GetTraceIdOfRequest(c *gin.Context) string {
	if v, ok := c.Get(TraceIdKey); ok {
		if traceId, ok := v.(string); ok {
			return traceId
		}
	}
	traceId := uuid.NewString()
	c.Set(TraceIdKey, traceId)
	return traceId
}
