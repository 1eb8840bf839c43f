package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/syntrixbase/concierge/internal/ask"
	"github.com/syntrixbase/concierge/internal/cluster"
	"github.com/syntrixbase/concierge/internal/config"
	"github.com/syntrixbase/concierge/internal/core/pubsub/nats"
	"github.com/syntrixbase/concierge/internal/gateway"
	"github.com/syntrixbase/concierge/internal/koncorde"
	"github.com/syntrixbase/concierge/internal/logging"
	"github.com/syntrixbase/concierge/internal/notifier"
	"github.com/syntrixbase/concierge/internal/realtime"
)

func main() {
	configDir := flag.String("config", "config", "configuration directory")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Logging error: %v", err)
	}
	defer logging.Shutdown()

	logger := slog.Default()
	logger.Info("Starting Concierge realtime subscription service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Core components
	engine, err := koncorde.NewEngine(logger)
	if err != nil {
		logger.Error("Failed to create filter engine", "error", err)
		os.Exit(1)
	}

	hub := gateway.NewHub(logger)
	bus := ask.New()

	// 3. Cluster bus (optional: standalone mode without it)
	var clerkOpts []realtime.Option
	clerkOpts = append(clerkOpts, realtime.WithConnectionChecker(hub))

	var provider *nats.Provider
	nodeID := cfg.Cluster.NodeID
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	if cfg.Cluster.Enabled {
		provider = nats.NewProvider(cfg.Cluster.URL, "concierge-"+nodeID)
		if err := provider.Connect(ctx); err != nil {
			logger.Error("Failed to connect to cluster bus", "error", err)
			os.Exit(1)
		}
		defer provider.Close()

		publisher, err := provider.NewPublisher()
		if err != nil {
			logger.Error("Failed to create cluster publisher", "error", err)
			os.Exit(1)
		}
		clerkOpts = append(clerkOpts, realtime.WithPropagator(cluster.NewGate(nodeID, publisher, logger)))
	} else {
		logger.Info("Cluster propagation disabled, running standalone")
	}

	// 4. Subscription coordinator and notifier
	clerk := realtime.NewHotelClerk(engine, cfg.Limits, logger, clerkOpts...)
	notif := notifier.New(clerk, engine, hub, logger)
	clerk.BindNotifier(notif)

	if err := clerk.RegisterAskHandlers(bus); err != nil {
		logger.Error("Failed to register realtime handlers", "error", err)
		os.Exit(1)
	}
	if err := notif.RegisterAskHandlers(bus); err != nil {
		logger.Error("Failed to register notifier handlers", "error", err)
		os.Exit(1)
	}

	// 5. Cluster listener applies peer join diffs
	if cfg.Cluster.Enabled {
		consumer, err := provider.NewConsumer()
		if err != nil {
			logger.Error("Failed to create cluster consumer", "error", err)
			os.Exit(1)
		}
		listener := cluster.NewListener(nodeID, consumer, clerk, logger)
		if err := listener.Start(ctx); err != nil {
			logger.Error("Failed to start cluster listener", "error", err)
			os.Exit(1)
		}
	}

	// 6. Gateway HTTP server
	gwServer := gateway.NewServer(cfg.Gateway, hub, bus, clerk, logger)
	server := &http.Server{
		Addr:         gwServer.Addr(),
		Handler:      gwServer,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		IdleTimeout:  cfg.Gateway.IdleTimeout,
	}

	go func() {
		logger.Info("Gateway listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Gateway server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 7. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
	logger.Info("Server exiting")
}
