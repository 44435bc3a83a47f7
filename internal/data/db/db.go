package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver        string
	DSN           string
	SlowThreshold time.Duration
	MaxOpenConns  int
}

// ConfigFromEnv reads DB_DRIVER / DATABASE_URL, falling back to the
// POSTGRES_* variables for the DSN.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:        strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres)),
		DSN:           envutil.String("DATABASE_URL", ""),
		SlowThreshold: envutil.Millis("DB_SLOW_QUERY_MS", time.Second),
		MaxOpenConns:  envutil.Int("DB_MAX_OPEN_CONNS", 20),
	}
	if cfg.DSN == "" && cfg.Driver == DriverPostgres {
		cfg.DSN = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s",
			envutil.String("POSTGRES_USER", "postgres"),
			envutil.String("POSTGRES_PASSWORD", ""),
			envutil.String("POSTGRES_HOST", "localhost"),
			envutil.String("POSTGRES_PORT", "5432"),
			envutil.String("POSTGRES_NAME", "enneagram"),
			envutil.String("POSTGRES_SSLMODE", "disable"),
		)
	}
	if cfg.DSN == "" && cfg.Driver == DriverSQLite {
		cfg.DSN = "file:enneagram.db?_busy_timeout=5000"
	}
	return cfg
}

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func Open(log *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := log.With("service", "DBService", "driver", cfg.Driver)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "pg", "postgresql":
		dialector = postgres.Open(cfg.DSN)
		cfg.Driver = DriverPostgres
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(cfg.DSN)
		cfg.Driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   NewGormLogger(serviceLog, cfg.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// one writer at a time; the job queue and request path share it
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &Service{db: db, driver: cfg.Driver, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB    { return s.db }
func (s *Service) Driver() string { return s.driver }

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
