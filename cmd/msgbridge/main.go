// msgbridge - MQTT message bridge
//
// msgbridge sits between an MQTT broker and HTTP/WebSocket consumers. It
// subscribes to broker topics, keeps an in-memory history of everything it
// sees, and exposes query, publish, and live-stream operations over a REST
// and WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/msgbridge/internal/api"
	"github.com/nerrad567/msgbridge/internal/delivery"
	"github.com/nerrad567/msgbridge/internal/infrastructure/config"
	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
	"github.com/nerrad567/msgbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/msgbridge/internal/message"
	"github.com/nerrad567/msgbridge/internal/relay"
	"github.com/nerrad567/msgbridge/internal/service"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting msgbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, cfg.Service.Name, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to the MQTT broker
	client, err := mqtt.Connect(cfg.Broker)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		log.Info("disconnecting from broker")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing broker connection", "error", closeErr)
		}
	}()
	client.SetLogger(log)
	client.SetOnDisconnect(func(err error) {
		log.Warn("broker connection lost", "error", err)
	})
	log.Info("broker connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	// Message store and live-delivery dispatcher
	store := message.NewStore()
	dispatcher := delivery.New(cfg.Delivery.QueueCapacity, log)
	defer dispatcher.Close()

	// Bridge: inbound pipeline plus the subscription registry
	bridge := relay.New(client, store, dispatcher, log, relay.Options{
		QoS:           byte(cfg.Broker.QoS),
		InboundBuffer: cfg.Delivery.InboundBuffer,
	})
	bridge.Start(ctx)
	defer bridge.Stop()

	// Seed default subscriptions
	for _, topic := range cfg.Subscriptions.Default {
		if subErr := bridge.Subscribe(topic); subErr != nil {
			log.Warn("default subscription failed", "topic", topic, "error", subErr)
		} else {
			log.Info("subscribed", "topic", topic)
		}
	}

	// Service layer and API server
	svc := service.New(store, bridge, dispatcher, log, cfg.GetActivityInterval())

	server, err := api.New(api.Deps{
		Config:  cfg,
		Logger:  log,
		Service: svc,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MSGBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MSGBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
