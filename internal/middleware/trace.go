package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eduforge/knowledge-backend/internal/pkg/ctxutil"
)

// Trace attaches trace and request identifiers to every request so logs
// and downstream calls can be correlated. Incoming X-Trace-ID is honored
// to keep correlation across service boundaries.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		requestID := uuid.NewString()

		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: requestID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Writer.Header().Set("X-Trace-ID", traceID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}
