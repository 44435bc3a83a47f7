package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin key/value facade over zap's sugared logger. Every
// key/value pair passes through the redactor before it reaches zap.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	scrub         *redactor
}

// New builds a logger for the given mode: "production" (JSON, info),
// "test" (console, warn) or anything else (console, debug). LOG_LEVEL
// overrides the production and development defaults.
func New(mode string) (*Logger, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	cfg, lvl := zap.NewDevelopmentConfig(), zapcore.DebugLevel
	switch mode {
	case "prod", "production":
		cfg, lvl = zap.NewProductionConfig(), zapcore.InfoLevel
	case "test":
		lvl = zapcore.WarnLevel
	}
	if mode != "test" {
		if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
			if parsed, err := zapcore.ParseLevel(raw); err == nil {
				lvl = parsed
			}
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: z.Sugar(), scrub: redactorFromEnv()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }

func (l *Logger) Debug(msg string, kv ...any) { l.SugaredLogger.Debugw(msg, l.scrub.apply(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.SugaredLogger.Infow(msg, l.scrub.apply(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.SugaredLogger.Warnw(msg, l.scrub.apply(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.SugaredLogger.Errorw(msg, l.scrub.apply(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.SugaredLogger.Fatalw(msg, l.scrub.apply(kv)...) }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.scrub.apply(kv)...), scrub: l.scrub}
}
