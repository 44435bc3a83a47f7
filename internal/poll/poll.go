// Package poll runs a bounded, cancellable check loop on a fixed or growing
// interval.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
)

// ErrExhausted means the attempt budget ran out before the check reported done.
var ErrExhausted = errors.New("poll: attempts exhausted")

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 15
)

type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	// Multiplier grows the wait after every attempt; values <= 1 keep it fixed.
	Multiplier  float64
	MaxInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts, Multiplier: 1}
}

func PolicyFromEnv() Policy {
	return Policy{
		Interval:    envutil.Millis("POLL_INTERVAL_MS", DefaultInterval),
		MaxAttempts: envutil.Int("POLL_MAX_ATTEMPTS", DefaultMaxAttempts),
		Multiplier:  envutil.Float("POLL_BACKOFF_MULTIPLIER", 1),
		MaxInterval: envutil.Millis("POLL_MAX_INTERVAL_MS", 0),
	}
}

func (p Policy) normalized() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Func is one check. done stops the loop; a non-nil err stops it and is
// returned as is.
type Func func(ctx context.Context, attempt int) (done bool, err error)

// Until calls fn immediately and then once per interval, at most MaxAttempts
// times. A canceled ctx wins over a pending wait.
func Until(ctx context.Context, p Policy, fn Func) error {
	p = p.normalized()
	wait := p.Interval

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait = next(wait, p)
	}
	return ErrExhausted
}

func next(cur time.Duration, p Policy) time.Duration {
	if p.Multiplier <= 1 {
		return cur
	}
	n := time.Duration(float64(cur) * p.Multiplier)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}
