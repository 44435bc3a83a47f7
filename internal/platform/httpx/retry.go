package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// Retrier repeats an HTTP call with jittered exponential backoff while its
// error stays retryable. A server Retry-After header overrides the backoff,
// capped at MaxWait.
type Retrier struct {
	Log        *logger.Logger
	Service    string
	MaxRetries int
	Backoff    time.Duration
	MaxWait    time.Duration
}

// Do calls call until it succeeds, fails permanently or MaxRetries extra
// attempts have been spent. call may return a non-nil response alongside
// its error so Retry-After can be read.
func (r Retrier) Do(ctx context.Context, path string, call func(ctx context.Context) (*http.Response, error)) error {
	wait := r.Backoff
	if wait <= 0 {
		wait = time.Second
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := call(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.MaxRetries || !IsRetryableError(err) {
			return err
		}
		sleepFor := JitterSleep(RetryAfterDuration(resp, wait, r.MaxWait))
		if r.Log != nil {
			r.Log.Warn("http call retrying",
				"service", r.Service,
				"path", path,
				"attempt", attempt+1,
				"max_retries", r.MaxRetries,
				"sleep", sleepFor.String(),
				"error", err.Error(),
			)
		}
		if err := Sleep(ctx, sleepFor); err != nil {
			return err
		}
		wait *= 2
	}
}

// Exchange sends req and reads the whole body. Non-2xx responses are turned
// into an error by onError, which sees the status and raw body.
func Exchange(c *http.Client, req *http.Request, onError func(status int, raw []byte) error) (*http.Response, []byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, onError(resp.StatusCode, raw)
	}
	return resp, raw, nil
}
