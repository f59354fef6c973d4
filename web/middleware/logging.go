package middleware

import (
	"bytes"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/util"
)

const maxLoggedBody = 1024

type loggingMiddlewareOptions struct {
	lg           *zap.Logger
	debugEnabled bool
	excludePaths []string
}

type LoggingMiddlewareOption func(*loggingMiddlewareOptions)

func WithLogger(lg *zap.Logger) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		if lg != nil {
			o.lg = lg
		}
	}
}

// WithDebugEnabled adds headers and the start of the response body to the access log.
func WithDebugEnabled(debugEnabled bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.debugEnabled = debugEnabled
	}
}

func WithExcludePaths(excludePaths []string) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.excludePaths = excludePaths
	}
}

func defaultLoggingMiddlewareOptions() *loggingMiddlewareOptions {
	return &loggingMiddlewareOptions{
		lg: zap.L(),
	}
}

// LoggingMiddleware writes one access log line per request. For websocket
// upgrades the line is written when the connection ends.
func LoggingMiddleware(opts ...LoggingMiddlewareOption) gin.HandlerFunc {
	cfg := defaultLoggingMiddlewareOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		if lo.Contains(cfg.excludePaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		correlationId, err := util.CorrelationIdFromCtx(c.Request.Context())
		if err != nil {
			correlationId = ""
		}
		upgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")

		var rw *responseWriter
		if cfg.debugEnabled && !upgrade {
			rw = &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}, limit: maxLoggedBody}
			c.Writer = rw
		}

		startTime := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("correlation_id", correlationId),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Bool("websocket", upgrade),
			zap.Duration("duration", time.Since(startTime)),
		}
		if rw != nil {
			fields = append(fields,
				zap.Any("requestHeaders", c.Request.Header),
				zap.ByteString("responseBody", rw.body.Bytes()),
			)
		}
		cfg.lg.Info("request served", fields...)
	}
}
