package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/chatlore-backend/internal/db"
	httpserver "github.com/yungbote/chatlore-backend/internal/http"
	"github.com/yungbote/chatlore-backend/internal/observability"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *httpserver.Server

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "chatlore",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	// The embedding columns are typed to the configured model's dimension,
	// so clients resolve first.
	if err := db.AutoMigrateAll(pg.DB(), clientset.Embedder.VectorDim()); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	reposet := wireRepos(pg.DB(), log)

	serviceset, err := wireServices(cfg, pg.DSN(), log, reposet, clientset)
	if err != nil {
		log.Sync()
		return nil, err
	}

	server := httpserver.NewServer(httpserver.Config{
		Ingest:     serviceset.Ingest,
		AskQueue:   reposet.AskQueue,
		TruthQueue: reposet.TruthQueue,
		Log:        log,
	})

	return &App{
		Log:          log,
		DB:           pg.DB(),
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers and the ingest scheduler.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Services.AskWorker.Run(ctx)
	go a.Services.TruthWorker.Run(ctx)
	go a.Services.Ingest.Run(ctx)
}

// Run blocks serving the ops endpoints.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Services.closeWaiters()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithCancel(context.Background())
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
