package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/infigaming-com/go-channels/util"
)

const CorrelationIdKey string = "X-CORRELATION-ID"

// CorrelationIdMiddleware tags the request context with a correlation id,
// reusing the one the caller sent. Connections served on the request log it
// as their connection id.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.GetHeader(CorrelationIdKey)
		if correlationId == "" {
			correlationId = util.NewUUID()
		}
		c.Header(CorrelationIdKey, correlationId)
		ctx := util.CorrelationIdToCtx(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
