package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/poll"
	"github.com/yungbote/enneagram-backend/internal/scoring"
)

func (f *fixture) paid(t *testing.T, email string) string {
	t.Helper()
	id := f.started(t, email)
	if _, err := f.repos.Assessment.AdvanceStatus(dbcOf(context.Background()), id, types.StatusPaid); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}
	return id
}

func newAnalysisService(f *fixture, gen NarrativeGenerator, timeout time.Duration) AnalysisService {
	return NewAnalysisService(f.log, f.repos.Assessment, f.repos.Analysis, gen, NewAnalysisTracker(f.log, nil, 0), f.jobs, timeout, 5)
}

func TestGetOrStartAnalysisGeneratesAndStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{text: "You lead with the Individualist."}
	svc := newAnalysisService(f, gen, time.Second)
	id := f.paid(t, "gen@example.com")

	out, err := svc.GetOrStartAnalysis(ctx, id)
	if err != nil {
		t.Fatalf("GetOrStartAnalysis: %v", err)
	}
	if out.Status != AnalysisReady || out.Text != gen.text {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if st := f.status(t, id); st != types.StatusAnalyzed {
		t.Fatalf("status=%s want ANALYZED", st)
	}
	stored, err := svc.Stored(ctx, id)
	if err != nil || stored == nil || stored.Text != gen.text || stored.Model != "fake-model" {
		t.Fatalf("stored analysis: %+v %v", stored, err)
	}

	gen.mu.Lock()
	sorted := gen.sorted
	gen.mu.Unlock()
	if len(sorted) != len(scoring.TypeIDs) || sorted[0].Type != "4" || sorted[1].Type != "1" {
		t.Fatalf("generator should receive scores highest first: %+v", sorted)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Score > sorted[i-1].Score {
			t.Fatalf("scores out of order at %d: %+v", i, sorted)
		}
	}

	again, err := svc.GetOrStartAnalysis(ctx, id)
	if err != nil || again.Status != AnalysisReady || again.Text != gen.text {
		t.Fatalf("second call: %+v %v", again, err)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("generator called %d times, want 1", n)
	}
}

func TestGetOrStartAnalysisSingleFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{
		text:    "done",
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := newAnalysisService(f, gen, 5*time.Second)
	id := f.paid(t, "single@example.com")

	var wg sync.WaitGroup
	var first *AnalysisOutcome
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = svc.GetOrStartAnalysis(ctx, id)
	}()
	<-gen.started

	for i := 0; i < 3; i++ {
		out, err := svc.GetOrStartAnalysis(ctx, id)
		if err != nil || out.Status != AnalysisInProgress {
			t.Fatalf("concurrent call %d: %+v %v", i, out, err)
		}
	}
	polled, err := svc.FetchOrStart(ctx, id)
	if err != nil || polled.Status != AnalysisInProgress {
		t.Fatalf("FetchOrStart during generation: %+v %v", polled, err)
	}

	close(gen.block)
	wg.Wait()
	if firstErr != nil || first.Status != AnalysisReady {
		t.Fatalf("first call: %+v %v", first, firstErr)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("generator called %d times, want 1", n)
	}
}

func TestGetOrStartAnalysisRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{text: "x"}
	svc := newAnalysisService(f, gen, time.Second)
	unpaid := f.started(t, "unpaid@example.com")

	cases := []struct {
		name string
		id   string
		kind error
	}{
		{"empty", " ", apierr.ErrValidation},
		{"missing", "does-not-exist", apierr.ErrNotFound},
		{"unpaid", unpaid, apierr.ErrForbidden},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.GetOrStartAnalysis(ctx, c.id); !errors.Is(err, c.kind) {
				t.Fatalf("GetOrStartAnalysis: got %v want %v", err, c.kind)
			}
			if _, err := svc.FetchOrStart(ctx, c.id); !errors.Is(err, c.kind) {
				t.Fatalf("FetchOrStart: got %v want %v", err, c.kind)
			}
		})
	}
	if gen.calls.Load() != 0 {
		t.Fatalf("generator must not run for rejected calls")
	}
	// the in-progress flag is released on the rejection path too
	out, err := svc.GetOrStartAnalysis(ctx, unpaid)
	if !errors.Is(err, apierr.ErrForbidden) || out != nil {
		t.Fatalf("repeat unpaid call: %+v %v", out, err)
	}
}

func TestAnalysisRequiresSavedResponses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{text: "x"}
	svc := newAnalysisService(f, gen, time.Second)
	id := f.unanswered(t, "blank@example.com")
	// a status flipped outside the payment flow
	if _, err := f.repos.Assessment.AdvanceStatus(dbcOf(ctx), id, types.StatusPaid); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}

	out, err := svc.GetOrStartAnalysis(ctx, id)
	if !errors.Is(err, apierr.ErrValidation) || out != nil {
		t.Fatalf("GetOrStartAnalysis: %+v %v", out, err)
	}
	if gen.calls.Load() != 0 {
		t.Fatalf("generator must not run without responses")
	}
	if a, _ := f.repos.Analysis.GetByAssessmentID(dbcOf(ctx), id); a != nil {
		t.Fatalf("no analysis should be stored: %+v", a)
	}
	if _, err := f.svc.GetResults(ctx, id); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("GetResults must not invent scores: %v", err)
	}
	// the flag is released, so a later call is rejected the same way
	if _, err := svc.GetOrStartAnalysis(ctx, id); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("repeat call: %v", err)
	}
}

func TestGetOrStartAnalysisFailureClearsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{err: errBoom}
	svc := newAnalysisService(f, gen, time.Second)
	id := f.paid(t, "fail@example.com")

	out, err := svc.GetOrStartAnalysis(ctx, id)
	if err != nil {
		t.Fatalf("generation failure should be an outcome, got error %v", err)
	}
	if out.Status != AnalysisError || !strings.Contains(out.Reason, "boom") {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.status(t, id) != types.StatusPaid {
		t.Fatalf("failed generation must not advance status")
	}
	if a, _ := svc.Stored(ctx, id); a != nil {
		t.Fatalf("failed generation must not store text")
	}

	gen.err = nil
	gen.text = "second time lucky"
	out, err = svc.GetOrStartAnalysis(ctx, id)
	if err != nil || out.Status != AnalysisReady || out.Text != "second time lucky" {
		t.Fatalf("retry: %+v %v", out, err)
	}
	if gen.calls.Load() != 2 {
		t.Fatalf("expected 2 generator calls, got %d", gen.calls.Load())
	}
}

func TestGetOrStartAnalysisTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{text: "late", block: make(chan struct{})}
	defer close(gen.block)
	svc := newAnalysisService(f, gen, 30*time.Millisecond)
	id := f.paid(t, "slow@example.com")

	started := time.Now()
	out, err := svc.GetOrStartAnalysis(ctx, id)
	if err != nil {
		t.Fatalf("GetOrStartAnalysis: %v", err)
	}
	if out.Status != AnalysisError || !strings.Contains(out.Reason, context.DeadlineExceeded.Error()) {
		t.Fatalf("expected timeout outcome, got %+v", out)
	}
	if time.Since(started) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
	release, ok := svc.(*analysisService).tracker.TryBegin(ctx, id)
	if !ok {
		t.Fatalf("in-progress flag should be cleared after timeout")
	}
	release()
}

func TestGetOrStartAnalysisSurvivesCallerCancel(t *testing.T) {
	f := newFixture(t)
	gen := &fakeGenerator{text: "kept", block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := newAnalysisService(f, gen, 5*time.Second)
	id := f.paid(t, "hangup@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *AnalysisOutcome, 1)
	go func() {
		out, _ := svc.GetOrStartAnalysis(ctx, id)
		done <- out
	}()
	<-gen.started
	cancel()
	close(gen.block)
	out := <-done
	if out == nil || out.Status != AnalysisReady {
		t.Fatalf("generation should finish after the caller goes away: %+v", out)
	}
}

func TestFetchOrStartQueuesWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &fakeGenerator{text: "from worker"}
	svc := newAnalysisService(f, gen, time.Second)
	id := f.paid(t, "queue@example.com")

	out, err := svc.FetchOrStart(ctx, id)
	if err != nil || out.Status != AnalysisInProgress {
		t.Fatalf("FetchOrStart: %+v %v", out, err)
	}
	if gen.calls.Load() != 0 {
		t.Fatalf("FetchOrStart must not generate inline")
	}
	if !f.analysisQueued(t, id) {
		t.Fatalf("analysis job should be queued")
	}
	// a second poll does not pile up jobs
	if _, err := svc.FetchOrStart(ctx, id); err != nil {
		t.Fatalf("second FetchOrStart: %v", err)
	}
	var n int64
	f.db.Model(&types.JobRun{}).Where("entity_id = ?", id).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}

	if _, err := svc.GetOrStartAnalysis(ctx, id); err != nil {
		t.Fatalf("GetOrStartAnalysis: %v", err)
	}
	out, err = svc.FetchOrStart(ctx, id)
	if err != nil || out.Status != AnalysisReady || out.Text != "from worker" {
		t.Fatalf("after generation: %+v %v", out, err)
	}
}

func TestFetchOrStartReportsExhaustedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAnalysisService(f, &fakeGenerator{}, time.Second)
	id := f.paid(t, "exhausted@example.com")

	now := time.Now()
	failed := &types.JobRun{
		JobType:    JobTypeAssessmentAnalysis,
		EntityType: EntityAssessment,
		EntityID:   id,
		Status:     jobstatus.StatusFailed,
		Attempts:   5,
		Error:      "analysis generation error: llm down",
		CreatedAt:  now.Add(-time.Minute),
		UpdatedAt:  now.Add(-time.Minute),
	}
	if _, err := f.repos.JobRun.Create(dbcOf(ctx), []*types.JobRun{failed}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	out, err := svc.FetchOrStart(ctx, id)
	if err != nil {
		t.Fatalf("FetchOrStart: %v", err)
	}
	if out.Status != AnalysisError || !strings.Contains(out.Reason, "llm down") {
		t.Fatalf("expected error outcome, got %+v", out)
	}
	if !f.analysisQueued(t, id) {
		t.Fatalf("a fresh job should be queued after exhaustion")
	}
	out, err = svc.FetchOrStart(ctx, id)
	if err != nil || out.Status != AnalysisInProgress {
		t.Fatalf("next poll should see the queued retry: %+v %v", out, err)
	}
}

func TestFetchOrStartRetryPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAnalysisService(f, &fakeGenerator{}, time.Second)
	id := f.paid(t, "retry@example.com")

	now := time.Now()
	if _, err := f.repos.JobRun.Create(dbcOf(ctx), []*types.JobRun{{
		JobType:    JobTypeAssessmentAnalysis,
		EntityType: EntityAssessment,
		EntityID:   id,
		Status:     jobstatus.StatusFailed,
		Attempts:   2,
		Error:      "transient",
		CreatedAt:  now,
		UpdatedAt:  now,
	}}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	out, err := svc.FetchOrStart(ctx, id)
	if err != nil || out.Status != AnalysisInProgress {
		t.Fatalf("failed job with attempts left is still in progress: %+v %v", out, err)
	}
}

// scriptedSource replays outcomes, repeating the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps []sourceStep
	calls int
}

type sourceStep struct {
	out *AnalysisOutcome
	err error
}

func (s *scriptedSource) GetOrStartAnalysis(context.Context, string) (*AnalysisOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].out, s.steps[i].err
}

func TestAwaitAnalysis(t *testing.T) {
	fast := poll.Policy{Interval: time.Millisecond, MaxAttempts: 5}
	inProgress := sourceStep{out: &AnalysisOutcome{Status: AnalysisInProgress}}
	failed := sourceStep{out: &AnalysisOutcome{Status: AnalysisError, Reason: "llm down"}}
	readyStep := sourceStep{out: &AnalysisOutcome{Status: AnalysisReady, Text: "hello"}}

	cases := []struct {
		name      string
		steps     []sourceStep
		wantErr   error
		wantReady bool
		status    AnalysisStatus
		calls     int
	}{
		{"ready after polling", []sourceStep{inProgress, inProgress, readyStep}, nil, true, AnalysisReady, 3},
		{"ready immediately", []sourceStep{readyStep}, nil, true, AnalysisReady, 1},
		{"unavailable after budget", []sourceStep{inProgress}, nil, false, AnalysisUnavailable, 5},
		{"error outcomes keep polling", []sourceStep{failed, failed, readyStep}, nil, true, AnalysisReady, 3},
		{"transient error keeps polling", []sourceStep{{err: errBoom}, readyStep}, nil, true, AnalysisReady, 2},
		{"forbidden stops", []sourceStep{inProgress, {err: apierr.Forbidden("payment_required", "nope")}}, apierr.ErrForbidden, false, "", 2},
		{"not found stops", []sourceStep{{err: apierr.NotFound("assessment_not_found", "nope")}}, apierr.ErrNotFound, false, "", 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := &scriptedSource{steps: c.steps}
			res, err := AwaitAnalysis(context.Background(), src, "a1", fast)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("err=%v want %v", err, c.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("AwaitAnalysis: %v", err)
				}
				if res.Ready != c.wantReady || res.Status != c.status {
					t.Fatalf("result: %+v", res)
				}
				if c.wantReady && res.Text != "hello" {
					t.Fatalf("text: %q", res.Text)
				}
			}
			if src.calls != c.calls {
				t.Fatalf("calls=%d want %d", src.calls, c.calls)
			}
		})
	}
}

func TestAwaitAnalysisCanceled(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{out: &AnalysisOutcome{Status: AnalysisInProgress}}}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := AwaitAnalysis(ctx, src, "a1", poll.Policy{Interval: time.Hour, MaxAttempts: 15})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("calls=%d want 1", src.calls)
	}
}

func TestAwaitAnalysisAgainstService(t *testing.T) {
	f := newFixture(t)
	gen := &fakeGenerator{text: "end to end"}
	svc := newAnalysisService(f, gen, time.Second)
	id := f.paid(t, "e2e@example.com")

	res, err := AwaitAnalysis(context.Background(), svc, id, poll.Policy{Interval: time.Millisecond, MaxAttempts: 3})
	if err != nil || !res.Ready || res.Text != "end to end" || res.Attempts != 1 {
		t.Fatalf("AwaitAnalysis: %+v %v", res, err)
	}
}
