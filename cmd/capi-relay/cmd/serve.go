package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Priya8975/capi-relay/internal/api"
	"github.com/Priya8975/capi-relay/internal/conversions"
	"github.com/Priya8975/capi-relay/internal/engine"
	"github.com/Priya8975/capi-relay/internal/store"
	"github.com/Priya8975/capi-relay/internal/tracker"
	ws "github.com/Priya8975/capi-relay/internal/websocket"
	"github.com/Priya8975/capi-relay/internal/worker"
	"github.com/Priya8975/capi-relay/migrations"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "HTTP port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// PostgreSQL backs the dispatch log and the purchase guard; without it
	// both are disabled.
	var pgStore *store.PostgresStore
	if cfg.DatabaseURL != "" {
		pgStore, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	} else {
		logger.Warn("DATABASE_URL not set, dispatch log and purchase guard disabled")
	}

	convCfg := cfg.Conversions()
	if !convCfg.Configured() {
		logger.Warn("PIXEL_ID or ACCESS_TOKEN missing, events will not be sent")
	}

	rc := redisStore.Client()
	hub := ws.NewHub(logger)
	go hub.Run()

	counters := store.NewCounters(rc)
	breaker := engine.NewCircuitBreaker(rc, logger)
	verifier := conversions.NewVerifier(convCfg, logger)

	dispatchOpts := []conversions.Option{
		conversions.WithCounters(counters),
		conversions.WithBreaker(breaker),
		conversions.WithMonitor(hub),
		conversions.WithVerifier(verifier),
	}
	if pgStore != nil {
		dispatchOpts = append(dispatchOpts, conversions.WithDispatchLog(pgStore))
	}
	dispatcher := conversions.NewDispatcher(convCfg, logger, dispatchOpts...)

	// Background sends outlive the signal context so the queue can drain.
	pool := worker.NewPool(cfg.NumWorkers, cfg.QueueSize, dispatcher, logger)
	pool.Start(context.Background())

	trackerOpts := []tracker.Option{
		tracker.WithDedup(engine.NewDedupGuard(rc, cfg.DedupWindow, logger)),
		tracker.WithPool(pool),
		tracker.WithMonitor(hub),
	}
	if pgStore != nil {
		trackerOpts = append(trackerOpts, tracker.WithOrderGuard(pgStore))
	}
	tr := tracker.New(engine.NewNormalizer(), dispatcher, logger, trackerOpts...)

	deps := api.Deps{
		Tracker:          tr,
		Verifier:         verifier,
		Counters:         counters,
		Breaker:          breaker,
		Limiter:          engine.NewRateLimiter(rc, logger),
		Hub:              hub,
		PixelID:          convCfg.PixelID,
		TrackingEnabled:  convCfg.Enabled,
		CollectRateLimit: cfg.CollectRateLimit,
		AdminToken:       cfg.AdminToken,
		Logger:           logger,
	}
	if pgStore != nil {
		deps.History = pgStore
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "version", Version, "pixel_id", convCfg.PixelID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		pool.Stop()
		hub.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	pool.Stop()
	hub.Stop()

	logger.Info("server stopped")
	return nil
}
