package ctxutil

import (
	"context"
	"reflect"
	"testing"
)

func TestTraceRoundTripAndFields(t *testing.T) {
	if _, ok := TraceFrom(context.Background()); ok {
		t.Fatalf("empty context should carry no trace")
	}
	ctx := WithTrace(nil, Trace{TraceID: "t1", AssessmentID: "a1"})
	got, ok := TraceFrom(ctx)
	if !ok || got.TraceID != "t1" {
		t.Fatalf("unexpected trace %+v ok=%v", got, ok)
	}
	want := []any{"trace_id", "t1", "assessment_id", "a1"}
	if !reflect.DeepEqual(got.Fields(), want) {
		t.Fatalf("Fields: got=%v want=%v", got.Fields(), want)
	}
	if !(Trace{}).IsZero() || got.IsZero() {
		t.Fatalf("IsZero mismatch")
	}
}

func TestTraceInjectKeepsExisting(t *testing.T) {
	payload := map[string]any{"trace_id": "mine"}
	Trace{TraceID: "t1", RequestID: "r1", AssessmentID: "a1"}.Inject(payload)
	if payload["trace_id"] != "mine" || payload["request_id"] != "r1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["assessment_id"]; ok {
		t.Fatalf("assessment id is not propagated through payloads")
	}
	Trace{TraceID: "x"}.Inject(nil)
}
