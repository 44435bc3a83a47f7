package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	"github.com/yungbote/enneagram-backend/internal/platform/ctxutil"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

/*
Context is the execution handle for a single claimed job run.
Handlers never touch job_run directly; lifecycle writes go through
Progress, Fail and Succeed, all guarded so a canceled run is not overwritten.
*/
type Context struct {
	Ctx     context.Context
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Log     *logger.Logger
	payload map[string]any
}

func NewContext(ctx context.Context, job *types.JobRun, repo repos.JobRunRepo, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{
		Ctx:  ctx,
		Job:  job,
		Repo: repo,
		Log:  log,
	}
	if job != nil {
		c.Log = log.With("job_id", job.ID, "job_type", job.JobType)
	}
	if err := c.decodePayload(); err != nil {
		c.Log.Warn("job payload is not valid JSON", "error", err)
	}
	if tr, ok := c.attachTrace(); ok {
		c.Log = c.Log.With(tr.Fields()...)
	}
	return c
}

// decodePayload leaves an empty map behind on malformed JSON; handlers
// validate the fields they need.
func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	if m == nil {
		m = map[string]any{}
	}
	c.payload = m
	return nil
}

func (c *Context) attachTrace() (ctxutil.Trace, bool) {
	if c == nil || c.Ctx == nil {
		return ctxutil.Trace{}, false
	}
	tr := ctxutil.Trace{
		TraceID:   c.PayloadString("trace_id"),
		RequestID: c.PayloadString("request_id"),
	}
	if c.Job != nil {
		tr.AssessmentID = c.Job.EntityID
	}
	if tr.IsZero() {
		return tr, false
	}
	c.Ctx = ctxutil.WithTrace(c.Ctx, tr)
	return tr, true
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Attempt is the 1-based attempt number of this run.
func (c *Context) Attempt() int {
	if c.Job == nil {
		return 0
	}
	return c.Job.Attempts
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// apply writes updates unless the run was canceled meanwhile, then mirrors
// them onto the in-memory job so handlers see a consistent row.
func (c *Context) apply(updates map[string]any, mirror func(j *types.JobRun)) bool {
	if c.Repo != nil && c.Job != nil && c.Job.ID != "" {
		ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.context()}, c.Job.ID, []string{jobstatus.StatusCanceled}, updates)
		if err != nil {
			c.Log.Warn("job_run update failed", "error", err)
			return false
		}
		if !ok {
			return false
		}
	}
	if c.Job != nil {
		mirror(c.Job)
	}
	return true
}

func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	updates := map[string]any{"stage": stage, "progress": pct, "message": msg, "heartbeat_at": now, "updated_at": now}
	if c.apply(updates, func(j *types.JobRun) {
		j.Stage, j.Progress, j.Message = stage, pct, msg
		j.HeartbeatAt, j.UpdatedAt = &now, now
	}) {
		c.Log.Debug("job progress", "stage", stage, "progress", pct)
	}
}

// Fail records a failed attempt. The claim query retries it after the
// worker's retry delay until attempts run out.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	updates := map[string]any{
		"status": jobstatus.StatusFailed, "stage": stage, "message": "", "error": msg,
		"last_error_at": now, "locked_at": nil, "updated_at": now,
	}
	if c.apply(updates, func(j *types.JobRun) {
		j.Status, j.Stage, j.Message, j.Error = jobstatus.StatusFailed, stage, "", msg
		j.LastErrorAt, j.LockedAt, j.UpdatedAt = &now, nil, now
	}) {
		c.Log.Warn("job failed", "stage", stage, "attempt", c.Attempt(), "error", msg)
	}
}

func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		} else {
			c.Log.Warn("job result not serializable", "error", err)
		}
	}
	updates := map[string]any{
		"status": jobstatus.StatusSucceeded, "stage": finalStage, "progress": 100, "message": "", "error": "",
		"result": res, "locked_at": nil, "heartbeat_at": now, "updated_at": now,
	}
	if c.apply(updates, func(j *types.JobRun) {
		j.Status, j.Stage, j.Progress, j.Message, j.Error = jobstatus.StatusSucceeded, finalStage, 100, "", ""
		j.Result, j.LockedAt, j.HeartbeatAt, j.UpdatedAt = res, nil, &now, now
	}) {
		c.Log.Info("job succeeded", "stage", finalStage)
	}
}
