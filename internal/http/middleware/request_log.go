package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enneagram-backend/internal/platform/ctxutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// RequestLogger writes one line per request. Health checks log at debug so
// they do not drown out real traffic.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
			"elapsed", time.Since(start).String(),
		}
		if tr, ok := ctxutil.TraceFrom(c.Request.Context()); ok {
			fields = append(fields, tr.Fields()...)
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, "error", err.Error())
		}

		switch {
		case route == "/healthcheck":
			log.Debug("request", fields...)
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
