package ctxutil

import "context"

type traceKey struct{}

// Trace identifies the request (or job) a unit of work belongs to.
type Trace struct {
	TraceID      string
	RequestID    string
	AssessmentID string
}

func (t Trace) IsZero() bool {
	return t.TraceID == "" && t.RequestID == "" && t.AssessmentID == ""
}

// Fields renders the non-empty ids as logger key/value pairs.
func (t Trace) Fields() []any {
	var out []any
	if t.TraceID != "" {
		out = append(out, "trace_id", t.TraceID)
	}
	if t.RequestID != "" {
		out = append(out, "request_id", t.RequestID)
	}
	if t.AssessmentID != "" {
		out = append(out, "assessment_id", t.AssessmentID)
	}
	return out
}

// Inject copies the ids into a job payload without overwriting keys the
// caller already set.
func (t Trace) Inject(payload map[string]any) {
	if payload == nil {
		return
	}
	put := func(k, v string) {
		if v == "" {
			return
		}
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
	put("trace_id", t.TraceID)
	put("request_id", t.RequestID)
}

func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(Default(ctx), traceKey{}, t)
}

func TraceFrom(ctx context.Context) (Trace, bool) {
	if ctx == nil {
		return Trace{}, false
	}
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
