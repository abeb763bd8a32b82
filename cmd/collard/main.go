package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/api"
	"livestock-collar-backend/internal/catalog"
	"livestock-collar-backend/internal/db"
	"livestock-collar-backend/internal/geofence"
	"livestock-collar-backend/internal/importer"
	"livestock-collar-backend/internal/ledger"
	"livestock-collar-backend/internal/lifecycle"
	"livestock-collar-backend/internal/logging"
	"livestock-collar-backend/internal/notification"
	"livestock-collar-backend/internal/store"
	"livestock-collar-backend/internal/sweeper"
	"livestock-collar-backend/internal/telemetry"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "collard")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gormDB, err := db.Init(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	// A missing state row is a broken deployment; refuse to serve.
	states, err := catalog.Load(ctx, gormDB)
	if err != nil {
		logger.Fatal("collar state catalog is incomplete", zap.Error(err))
	}

	appStore := store.NewGormStore(gormDB)
	evaluator := geofence.New(cfg.Geofence.MaxFixAge, logger)
	manager := lifecycle.New(gormDB, states, ledger.New(nil), logger)

	var (
		webpushOptions *webpush.Options
		notifier       telemetry.Notifier
	)
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		cooldown := time.Duration(cfg.Push.CooldownMinutes) * time.Minute
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, evaluator, webpushOptions, cooldown, logger)
		pool.Start(ctx)
		notifier = pool
	} else {
		logger.Warn("VAPID keys are not configured, geofence breach alerts are disabled")
	}

	sweeperSvc := sweeper.NewService(cfg.Sweeper, appStore, manager, logger)
	go sweeperSvc.Run(ctx)

	router := api.NewRouter(api.Services{
		Store:      appStore,
		Catalog:    states,
		Manager:    manager,
		Reconciler: importer.NewReconciler(gormDB, manager, nil, logger),
		Details:    importer.NewDetailStore(cfg.Import.DetailTTL),
		Recorder:   telemetry.NewRecorder(gormDB, telemetry.NewNodeAuthorizer(gormDB), notifier, logger),
		Evaluator:  evaluator,
		Webpush:    webpushOptions,
		Log:        logger,
	}, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}
