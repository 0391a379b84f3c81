package middleware

import (
	"context"
	"strconv"
	"strings"

	"judgebroker/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	userIDContextKey    = "user_id"
)

// TraceContextConfig controls which caller supplied ids are trusted.
type TraceContextConfig struct {
	// AllowUserIDHeader copies X-User-Id into the log context. Only enable it
	// behind a proxy that sets the header itself.
	AllowUserIDHeader bool
}

// TraceContextMiddleware tags every request with trace and request ids.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
// Ids land in the gin context, the request context used by the logger and the response headers.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNew(c, traceIDHeader)
		requestID := headerOrNew(c, requestIDHeader)

		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Set(traceIDContextKey, traceID)
		c.Set(requestIDContextKey, requestID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if cfg.AllowUserIDHeader {
			if raw := strings.TrimSpace(c.GetHeader(userIDHeader)); raw != "" {
				ctx = context.WithValue(ctx, contextkey.UserID, raw)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// tagUser records the authenticated user on the request context for logging.
func tagUser(c *gin.Context, userID int64) {
	ctx := context.WithValue(c.Request.Context(), contextkey.UserID, strconv.FormatInt(userID, 10))
	c.Request = c.Request.WithContext(ctx)
}

func headerOrNew(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.NewString()
}
