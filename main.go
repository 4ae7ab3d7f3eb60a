package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"sympto/internal/apiclient"
	"sympto/internal/config"
	"sympto/internal/database"
	"sympto/internal/drafts"
	"sympto/internal/history"
	logger "sympto/internal/logging"
	"sympto/internal/models"
	"sympto/internal/router"
	"sympto/internal/services"
	"sympto/internal/steps"
	"sympto/internal/submission"
)

func main() {
	projectRoot, err := os.Getwd()
	if err != nil {
		panic("failed to resolve working directory: " + err.Error())
	}

	store, err := config.Load(projectRoot)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	cfg := store.Current()

	// Initialize Logger
	log, err := logger.Init(projectRoot, cfg.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	store.Watch(log)

	catalog, err := loadCatalog(cfg.Server.CatalogFile)
	if err != nil {
		log.Fatal("Failed to load field catalog", zap.Error(err))
	}

	kv, closeKV, err := openDrafts(cfg, log)
	if err != nil {
		log.Fatal("Failed to open draft storage", zap.Error(err))
	}
	defer closeKV()

	clock := clockwork.NewRealClock()
	api := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout, log)

	coord := submission.New(api, submission.Options{
		Clock: clock,
		Log:   log,
		Poll: func() submission.PollOptions {
			p := store.Current().Polling
			return submission.PollOptions{MaxAttempts: p.MaxAttempts, Interval: p.Interval}
		},
	})
	defer coord.Close()

	historySvc := history.NewService(api, catalog, log)
	registry := steps.Default()

	sessions := services.NewSessionManager(services.ManagerOptions{
		KV:          kv,
		Coordinator: coord,
		Recent:      historySvc,
		Steps:       registry,
		Clock:       clock,
		Log:         log,
		Timings: func() services.WizardTimings {
			w := store.Current().Wizard
			return services.WizardTimings{
				AutosaveDelay: w.AutosaveDelay,
				FocusDelay:    w.FocusDelay,
				StoreTimeout:  w.StoreTimeout,
			}
		},
	})
	defer sessions.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := services.NewSweeper(log, sessions, clock, cfg.Sessions.SweepInterval, func() time.Duration {
		return store.Current().Sessions.IdleTimeout
	})
	sweeper.Start(ctx)

	// Setup router, passing the logger to it
	r := router.Setup(log, cfg.Server, router.Deps{
		Sessions: sessions,
		History:  historySvc,
		Health:   api,
		Catalog:  catalog,
		Steps:    registry,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening on http://localhost" + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to run Gin server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	<-sweeper.Done()
}

func loadCatalog(path string) (*models.Catalog, error) {
	if path == "" {
		return models.DefaultCatalog()
	}
	return models.LoadCatalog(path)
}

// openDrafts builds the configured draft backend and returns its cleanup.
func openDrafts(cfg config.Config, log *zap.Logger) (drafts.KV, func(), error) {
	switch cfg.Drafts.Backend {
	case "memory":
		log.Warn("Drafts are kept in memory and will not survive a restart")
		return drafts.NewMemoryKV(), func() {}, nil
	case "redis":
		rdb, err := drafts.DialRedis(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Draft storage: redis", zap.String("addr", cfg.Redis.Addr))
		return drafts.NewRedisKV(rdb, cfg.Redis.TTL), func() { _ = rdb.Close() }, nil
	default:
		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		return drafts.NewSQLKV(db), func() { database.Close(db) }, nil
	}
}
