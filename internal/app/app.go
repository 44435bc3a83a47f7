package app

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/enneagram-backend/internal/data/db"
	"github.com/yungbote/enneagram-backend/internal/data/repos"
	"github.com/yungbote/enneagram-backend/internal/http"
	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Repos
	Clients  Clients
	Services Services
	Server   *http.Server
	Metrics  *observability.Metrics

	dbService *db.Service
}

func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	LoadDotEnv(log)

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	dbService, err := db.Open(log, db.ConfigFromEnv())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if envutil.Bool("DB_AUTO_MIGRATE", true) {
		if err := db.AutoMigrateAll(dbService.DB()); err != nil {
			_ = dbService.Close()
			log.Sync()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	theDB := dbService.DB()

	clients, err := wireClients(log)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	metrics := observability.Init(log)

	var server *http.Server
	if cfg.RunServer {
		server = wireServer(log, cfg, wireHandlers(log, theDB, serviceset), metrics)
	}

	return &App{
		Log:       log,
		DB:        theDB,
		Cfg:       cfg,
		Repos:     reposet,
		Clients:   clients,
		Services:  serviceset,
		Server:    server,
		Metrics:   metrics,
		dbService: dbService,
	}, nil
}

// Run blocks until ctx is canceled or a component fails. The HTTP server,
// the job worker and the metrics loops share one errgroup; the first error
// cancels the rest.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	shutdownTracing := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: a.Cfg.ServiceName,
		Environment: a.Cfg.Environment,
		Version:     a.Cfg.Version,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			a.Log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if a.Metrics != nil {
		a.Metrics.StartServer(gctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartCollectors(gctx, a.Log, a.DB, a.Cfg.RedisAddr)
	}

	if a.Services.JobWorker != nil {
		g.Go(func() error {
			return a.Services.JobWorker.Run(gctx)
		})
	}

	if a.Server != nil {
		addr := net.JoinHostPort("", a.Cfg.Port)
		g.Go(func() error {
			return a.Server.Run(gctx, addr, a.Cfg.ShutdownTimeout)
		})
	}

	if a.Server == nil && a.Services.JobWorker == nil {
		return fmt.Errorf("nothing to run: RUN_SERVER and RUN_WORKER are both false")
	}
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
