package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/enneagram-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"

	maxRequestIDLen = 128
)

// AttachTraceContext stamps every request with a trace id (the active span's
// when otelgin started one) and a request id, echoes both back as headers and
// stores them, plus the assessment id on assessment routes, on the request context.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tr := ctxutil.Trace{
			TraceID:      traceIDFor(c),
			RequestID:    cleanRequestID(c.GetHeader(HeaderRequestID)),
		}
		if strings.HasPrefix(c.FullPath(), "/api/assessments/:id") {
			tr.AssessmentID = c.Param("id")
		}
		if tr.RequestID == "" {
			tr.RequestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithTrace(c.Request.Context(), tr))
		c.Header(HeaderTraceID, tr.TraceID)
		c.Header(HeaderRequestID, tr.RequestID)
		c.Next()
	}
}

func traceIDFor(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if v := cleanRequestID(c.GetHeader(HeaderTraceID)); v != "" {
		return v
	}
	return uuid.NewString()
}

// cleanRequestID drops client supplied ids that are too long or carry
// anything beyond visible ASCII, so they are safe to log and echo.
func cleanRequestID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return ""
		}
	}
	return v
}
