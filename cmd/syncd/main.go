package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/msupply-sync/internal/broker"
	"github.com/Guizzs26/msupply-sync/internal/config"
	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/numbering"
	"github.com/Guizzs26/msupply-sync/internal/outbox"
	"github.com/Guizzs26/msupply-sync/internal/processor"
	"github.com/Guizzs26/msupply-sync/internal/scheduler"
	"github.com/Guizzs26/msupply-sync/internal/service"
	"github.com/Guizzs26/msupply-sync/internal/settings"
	"github.com/Guizzs26/msupply-sync/internal/transport"
	"github.com/Guizzs26/msupply-sync/pkg/infra"
	"github.com/Guizzs26/msupply-sync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("CRITICAL: local store unavailable", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	st := settings.New(store)
	storeID, err := resolveStoreID(ctx, st, cfg.ThisStoreID)
	if err != nil || storeID == "" {
		logger.Error("CRITICAL: THIS_STORE_ID is not configured", "error", err)
		os.Exit(1)
	}

	logger.Info("🔥 Sync daemon initializing...",
		"store_id", storeID,
		"site_id", cfg.SiteID,
		"transport", cfg.Transport,
	)

	ob := outbox.New(store, logger)
	ob.Start()
	defer ob.Stop()

	numbers := numbering.New(logger)
	releaser := numbering.NewReleaser(store, numbers, storeID, logger)
	releaser.Start()
	defer releaser.Stop()

	proc := processor.New(store, st, numbers, storeID, logger)
	proc.Start()
	defer proc.Stop()

	if pending, err := ob.Pending(ctx); err == nil {
		metrics.OutboxBacklog.Set(float64(pending))
	}

	server, closeServer, ok := connect(ctx, cfg, storeID, logger)
	if !ok {
		logger.Info("🛑 Shutdown signal received before connection")
		return
	}
	defer closeServer()

	sync := service.NewSyncService(store, server, ob, proc, st, storeID, cfg.BatchSize, logger)

	// Start Observability Server
	go startObservabilityServer(cfg.MetricsPort, sync, logger)

	logger.Info("✅ Sync daemon started", "interval", cfg.SyncInterval, "pid", os.Getpid())
	scheduler.New(sync, proc, cfg.SyncInterval, logger).Run(ctx)
	logger.Info("👋 Shutdown complete")
}

// resolveStoreID prefers the configured store and remembers it for later runs
func resolveStoreID(ctx context.Context, st *settings.Store, configured string) (string, error) {
	if configured != "" {
		return configured, st.Set(ctx, settings.ThisStoreID, configured)
	}
	return st.Get(ctx, settings.ThisStoreID)
}

// connect builds the configured server transport. AMQP retries with backoff until
// the broker answers or ctx ends
func connect(ctx context.Context, cfg *config.Config, storeID string, logger *slog.Logger) (service.Server, func(), bool) {
	if cfg.Transport != config.TransportAMQP {
		client := transport.NewClient(transport.Options{
			BaseURL:      cfg.ServerURL,
			SiteName:     cfg.SiteName,
			SitePassword: cfg.SitePassword,
			SiteID:       cfg.SiteID,
			ServerID:     cfg.ServerID,
			SiteUUID:     cfg.SiteUUID,
			Timeout:      cfg.HTTPTimeout,
			RateLimit:    cfg.HTTPRateLimit,
		}, logger)
		return client, func() {}, true
	}

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	for {
		rabbitmq, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, logger)
		if err == nil {
			var relay *broker.Relay
			relay, err = broker.NewRelay(rabbitmq, cfg.SiteID, storeID, logger)
			if err == nil {
				logger.Info("RabbitMQ link established 🚀")
				return relay, func() { rabbitmq.Close() }, true
			}
			rabbitmq.Close()
		}

		logger.Error("RabbitMQ connection failed, retrying...",
			"attempt", connBackoff.Attempts()+1,
			"error", err,
		)
		if _, err := connBackoff.Wait(ctx); err != nil {
			return nil, nil, false
		}
	}
}

func startObservabilityServer(port string, sync *service.SyncService, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := sync.Status()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SYNC " + string(status.State)))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
