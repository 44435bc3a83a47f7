package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *GaugeVec

	analysisRuns    *CounterVec
	analysisLatency *HistogramVec
	payments        *CounterVec
	emails          *CounterVec

	jobRuns     *CounterVec
	jobDuration *HistogramVec
	queueDepth  *GaugeVec

	dbStats   *GaugeVec
	redisUp   *GaugeVec
	redisPing *GaugeVec
}

var (
	initMu   sync.Mutex
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current is nil while metrics are disabled; every method is nil-safe.
func Current() *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Init installs the process-wide Metrics when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initMu.Lock()
	defer initMu.Unlock()
	if instance == nil {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	}
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("enn_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"enn_api_request_duration_seconds",
			"API request latency in seconds.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight: NewGaugeVec("enn_api_inflight_requests", "In-flight API requests.", nil),
		analysisRuns: NewCounterVec("enn_analysis_generations_total", "Narrative generations by outcome.", []string{"outcome"}),
		analysisLatency: NewHistogramVec(
			"enn_analysis_generation_seconds",
			"Narrative generation latency in seconds.",
			[]string{"outcome"},
			[]float64{1, 2, 5, 10, 20, 30, 60, 90, 120},
		),
		payments: NewCounterVec("enn_payments_total", "Assessments moved to PAID by path.", []string{"path"}),
		emails:   NewCounterVec("enn_results_emails_total", "Results emails by outcome.", []string{"outcome"}),
		jobRuns:  NewCounterVec("enn_job_runs_total", "Job executions by type/status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec(
			"enn_job_run_duration_seconds",
			"Job execution time in seconds.",
			[]string{"job_type", "status"},
			[]float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		),
		queueDepth: NewGaugeVec("enn_job_queue_depth", "Job rows by status.", []string{"status"}),
		dbStats:    NewGaugeVec("enn_db_pool", "database/sql pool stats.", []string{"metric"}),
		redisUp:    NewGaugeVec("enn_redis_up", "1 when the last redis ping succeeded.", nil),
		redisPing:  NewGaugeVec("enn_redis_ping_seconds", "Last redis ping latency.", nil),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveAnalysis(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.analysisRuns.Inc(outcome)
	m.analysisLatency.Observe(dur.Seconds(), outcome)
}

func (m *Metrics) IncPayment(path string) {
	if m == nil {
		return
	}
	m.payments.Inc(path)
}

func (m *Metrics) IncEmail(outcome string) {
	if m == nil {
		return
	}
	m.emails.Inc(outcome)
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Inc(jobType, status)
	m.jobDuration.Observe(dur.Seconds(), jobType, status)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	type writer interface{ WritePrometheus(io.Writer) error }
	for _, s := range []writer{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.analysisRuns, m.analysisLatency, m.payments, m.emails,
		m.jobRuns, m.jobDuration, m.queueDepth,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := s.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

// StartServer serves /metrics on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.WriteHTTP)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

// StartCollectors samples the job queue, the DB pool and, when redisAddr is
// set, redis reachability on every scrape interval.
func (m *Metrics) StartCollectors(ctx context.Context, log *logger.Logger, db *gorm.DB, redisAddr string) {
	if m == nil {
		return
	}
	var rdb *redis.Client
	if addr := strings.TrimSpace(redisAddr); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	go func() {
		t := time.NewTicker(scrapeInterval())
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				if rdb != nil {
					_ = rdb.Close()
				}
				return
			case <-t.C:
				if db != nil {
					m.CollectDB(ctx, log, db)
				}
				if rdb != nil {
					m.collectRedis(ctx, log, rdb)
				}
			}
		}
	}()
}

func (m *Metrics) CollectDB(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	for _, s := range []string{jobstatus.StatusQueued, jobstatus.StatusRunning, jobstatus.StatusFailed, jobstatus.StatusSucceeded, jobstatus.StatusCanceled} {
		m.queueDepth.Set(0, s)
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).Model(&types.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil {
			log.Warn("metrics: job queue query failed", "error", err)
		}
	}
	for _, r := range rows {
		m.queueDepth.Set(float64(r.Count), r.Status)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	st := sqlDB.Stats()
	m.dbStats.Set(float64(st.OpenConnections), "open_connections")
	m.dbStats.Set(float64(st.InUse), "in_use")
	m.dbStats.Set(float64(st.Idle), "idle")
	m.dbStats.Set(float64(st.WaitCount), "wait_count")
	m.dbStats.Set(st.WaitDuration.Seconds(), "wait_duration_seconds")
}

func (m *Metrics) collectRedis(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		m.redisUp.Set(0)
		if log != nil {
			log.Warn("metrics: redis ping failed", "error", err)
		}
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
}
