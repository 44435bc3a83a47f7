package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// Locker hands out short-lived exclusive leases shared by every process
// talking to the same redis.
type Locker interface {
	// TryLock returns ok=false without error when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	Close() error
}

type locker struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// only the owner token may delete the key
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewLockerFromEnv returns nil, nil when REDIS_ADDR is unset.
func NewLockerFromEnv(log *logger.Logger) (Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, nil
	}
	return NewLocker(log, &goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	}, envutil.String("REDIS_LOCK_PREFIX", "enneagram:lock:"))
}

func NewLocker(log *logger.Logger, opts *goredis.Options, prefix string) (Locker, error) {
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &locker{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (l *locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.rdb == nil {
		return nil, false, errors.New("redis locker not initialized")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// the caller's ctx may already be done
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			l.log.Warn("redis lock release failed", "key", full, "error", err)
		}
	}
	return release, true, nil
}

func (l *locker) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
