package services

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/enneagram-backend/internal/clients/redis"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

const defaultTrackerCacheSize = 1024

// AnalysisTracker is the process-wide per-assessment state: an in-progress
// flag and a small cache of finished texts. With a Locker the flag is also
// held in redis so separate processes exclude each other.
type AnalysisTracker struct {
	log     *logger.Logger
	locker  redis.Locker
	lockTTL time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
	results  map[string]string
	order    []string
	maxCache int
}

func NewAnalysisTracker(baseLog *logger.Logger, locker redis.Locker, lockTTL time.Duration) *AnalysisTracker {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &AnalysisTracker{
		log:      baseLog.With("component", "AnalysisTracker"),
		locker:   locker,
		lockTTL:  lockTTL,
		inFlight: make(map[string]struct{}),
		results:  make(map[string]string),
		maxCache: defaultTrackerCacheSize,
	}
}

func (t *AnalysisTracker) Cached(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	text, ok := t.results[id]
	return text, ok
}

func (t *AnalysisTracker) InProgress(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inFlight[id]
	return ok
}

// TryBegin sets the in-progress flag for id. ok is false when a generation
// is already running here or, with redis, in another process. The returned
// release must be called exactly once on every exit path.
func (t *AnalysisTracker) TryBegin(ctx context.Context, id string) (release func(), ok bool) {
	t.mu.Lock()
	if _, busy := t.inFlight[id]; busy {
		t.mu.Unlock()
		return nil, false
	}
	t.inFlight[id] = struct{}{}
	t.mu.Unlock()

	unlockRemote := func() {}
	if t.locker != nil {
		rel, got, err := t.locker.TryLock(ctx, "analysis:"+id, t.lockTTL)
		switch {
		case err != nil:
			// redis down: the local flag still holds within this process
			t.log.Warn("analysis lock unavailable, using local flag only", "assessment_id", id, "error", err)
		case !got:
			t.clear(id)
			return nil, false
		default:
			unlockRemote = rel
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockRemote()
			t.clear(id)
		})
	}, true
}

func (t *AnalysisTracker) clear(id string) {
	t.mu.Lock()
	delete(t.inFlight, id)
	t.mu.Unlock()
}

// Remember caches text for id, evicting the oldest entry past capacity.
func (t *AnalysisTracker) Remember(id, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.results[id]; !ok {
		t.order = append(t.order, id)
	}
	t.results[id] = text
	for len(t.order) > t.maxCache {
		delete(t.results, t.order[0])
		t.order = t.order[1:]
	}
}
