package app

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	RunServer bool
	RunWorker bool

	AnalysisTimeout   time.Duration
	AnalysisLockTTL   time.Duration
	EmailOnAnalysis   bool
	ChartFontPath     string
	ResultsLinkSecret string
	ResultsLinkTTL    time.Duration
	ResultsLinkBase   string

	RedisAddr   string
	MetricsAddr string
}

// LoadDotEnv reads .env (or ENV_FILE) into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(log *logger.Logger) {
	path := envutil.String("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if log != nil {
			log.Debug("no env file loaded", "path", path, "error", err)
		}
	}
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName: envutil.String("SERVICE_NAME", "enneagram-api"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		Port:            envutil.String("PORT", "8080"),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		CORSOrigins:     splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		RunServer: envutil.Bool("RUN_SERVER", true),
		RunWorker: envutil.Bool("RUN_WORKER", true),

		AnalysisTimeout:   envutil.Seconds("ANALYSIS_TIMEOUT_SECONDS", 120*time.Second),
		AnalysisLockTTL:   envutil.Seconds("ANALYSIS_LOCK_TTL_SECONDS", 5*time.Minute),
		EmailOnAnalysis:   envutil.Bool("EMAIL_RESULTS_ON_ANALYSIS", true),
		ChartFontPath:     envutil.String("CHART_FONT_PATH", ""),
		ResultsLinkSecret: envutil.String("RESULTS_LINK_SECRET", ""),
		ResultsLinkTTL:    time.Duration(envutil.Int("RESULTS_LINK_TTL_HOURS", 24*30)) * time.Hour,
		ResultsLinkBase:   envutil.String("RESULTS_LINK_BASE_URL", "http://localhost:5173/results"),

		RedisAddr:   envutil.String("REDIS_ADDR", ""),
		MetricsAddr: envutil.String("METRICS_ADDR", ""),
	}
	if cfg.AnalysisLockTTL < cfg.AnalysisTimeout {
		cfg.AnalysisLockTTL = cfg.AnalysisTimeout + 30*time.Second
	}
	if log != nil {
		log.Info("config loaded",
			"env", cfg.Environment,
			"port", cfg.Port,
			"run_server", cfg.RunServer,
			"run_worker", cfg.RunWorker,
			"analysis_timeout_s", int(cfg.AnalysisTimeout.Seconds()),
		)
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
