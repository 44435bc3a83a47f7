package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// gormLog routes GORM's query log through the service logger. Only slow
// queries and errors are reported.
type gormLog struct {
	log   *logger.Logger
	slow  time.Duration
	level gormLogger.LogLevel
}

func NewGormLogger(log *logger.Logger, slow time.Duration) gormLogger.Interface {
	return &gormLog{log: log.With("component", "gorm"), slow: slow, level: gormLogger.Warn}
}

func (g *gormLog) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *gormLog) Info(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormLogger.Info {
		g.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormLogger.Warn {
		g.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Error(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormLogger.Error {
		g.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && g.level >= gormLogger.Error &&
		!errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, gorm.ErrDuplicatedKey):
		sql, rows := fc()
		g.log.Error("query failed", "error", err, "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case g.slow > 0 && elapsed > g.slow && g.level >= gormLogger.Warn:
		sql, rows := fc()
		g.log.Warn("slow query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case g.level >= gormLogger.Info:
		sql, rows := fc()
		g.log.Debug("query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	}
}
