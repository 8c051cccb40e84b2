package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/vergetel/ussdbridge/internal/bridge"
	"github.com/vergetel/ussdbridge/internal/config"
	"github.com/vergetel/ussdbridge/internal/httpserver"
	"github.com/vergetel/ussdbridge/internal/logging"
	"github.com/vergetel/ussdbridge/internal/parlayx"
	"github.com/vergetel/ussdbridge/internal/session"
)

func main() {
	appCtx, rootCancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer rootCancel()

	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		// Use standard log before slog is configured
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Setup Logging ---
	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel <= slog.LevelDebug,
	}
	baseHandler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(logging.NewContextHandler(baseHandler))
	slog.SetDefault(logger)
	slog.Info("Logging initialized", "level", logLevel.String())

	// --- Session Store ---
	var store session.Store
	switch cfg.Session.Store {
	case "memory":
		slog.Info("Using in-memory session store", slog.Duration("ttl", cfg.Session.TTL))
		store = session.NewMemoryStore(cfg.Session.TTL)
	default:
		slog.Info("Connecting to Redis...", slog.String("addr", cfg.Session.RedisAddr))
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			slog.Error("Failed to ping Redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		store = session.NewRedisStore(rdb, cfg.Session.TTL)
	}

	// --- Message Bus ---
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
	defer pubsub.Close()

	// --- Carrier Client ---
	carrier := parlayx.NewClient(parlayx.Config{
		ServiceID:       cfg.Carrier.ServiceID,
		SPID:            cfg.Carrier.SPID,
		SPPassword:      cfg.Carrier.SPPassword,
		ShortCode:       cfg.Carrier.ShortCode,
		Endpoint:        cfg.Carrier.EndpointURI,
		SendURI:         cfg.Carrier.SendURI,
		NotificationURI: cfg.Carrier.NotificationURI,
		Timeout:         cfg.Carrier.RequestTimeout,
	})

	// --- Bridge and Notification Server ---
	br := bridge.New(store, carrier, pubsub, pubsub, bridge.Topics{
		Inbound:  cfg.Bus.InboundTopic,
		Outbound: cfg.Bus.OutboundTopic,
		Events:   cfg.Bus.EventsTopic,
	})
	httpServer := httpserver.NewServer(cfg.HTTP, br.HandleInbound)

	// --- Start Components Concurrently ---
	var wg sync.WaitGroup

	slog.Info("Starting application components...")

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := br.Run(appCtx); err != nil {
			slog.Error("Outbound loop failed", slog.Any("error", err))
			rootCancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.ListenAndServe(); err != nil {
			slog.Error("Notification server failed", slog.Any("error", err))
			rootCancel()
		}
	}()

	// --- Register with the Carrier ---
	// Registration advertises our endpoint as the notification delivery
	// target. The carrier side is not always up when we are, so retry
	// with backoff before giving up.
	if cfg.Carrier.Register {
		_, err := backoff.Retry(appCtx, func() (struct{}, error) {
			return struct{}{}, carrier.StartNotification(appCtx)
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(cfg.Carrier.RegisterMaxRetries),
		)
		if err != nil {
			slog.Error("Failed to register notification endpoint", slog.Any("error", err))
			rootCancel()
		} else {
			slog.Info("Notification endpoint registered",
				slog.String("endpoint", cfg.Carrier.EndpointURI),
				slog.String("correlator", carrier.Correlator()))
		}
	}

	// --- Wait for Shutdown Signal ---
	<-appCtx.Done()
	slog.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownTimeout := 20 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if cfg.Carrier.Register {
		slog.Info("Deregistering notification endpoint...")
		if err := carrier.StopNotification(shutdownCtx); err != nil {
			slog.Warn("Error deregistering notification endpoint", slog.Any("error", err))
		}
	}

	slog.Info("Shutting down notification server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Error during notification server shutdown", slog.Any("error", err))
	} else {
		slog.Info("Notification server shutdown complete.")
	}

	slog.Info("Closing message bus...")
	if err := pubsub.Close(); err != nil {
		slog.Warn("Error closing message bus", slog.Any("error", err))
	}

	slog.Info("Waiting for main application goroutines to stop...")
	wg.Wait()

	slog.Info("Application gracefully stopped.")
}
