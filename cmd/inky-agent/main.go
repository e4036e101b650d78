// Inky Agent - E-Ink Display Edge Agent
//
// This is the main entry point for the Inky display agent. The agent
// runs on a Raspberry Pi attached to an Inky Impression e-ink panel,
// registers itself with the display coordinator over MQTT, and serves
// display commands: fetch an image from the coordinator's object store,
// refresh the panel, and acknowledge the result.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oakdene/inky-agent/internal/agent"
	"github.com/oakdene/inky-agent/internal/bus"
	"github.com/oakdene/inky-agent/internal/display"
	"github.com/oakdene/inky-agent/internal/history"
	"github.com/oakdene/inky-agent/internal/imagestore"
	"github.com/oakdene/inky-agent/internal/infrastructure/config"
	"github.com/oakdene/inky-agent/internal/infrastructure/database"
	"github.com/oakdene/inky-agent/internal/infrastructure/logging"
	"github.com/oakdene/inky-agent/internal/telemetry"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Inky agent",
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
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Initialise the panel (hardware discovery, or the mock)
	disp, err := display.New(cfg.Display)
	if err != nil {
		return fmt.Errorf("initialising display: %w", err)
	}
	defer func() {
		log.Info("closing display")
		if closeErr := disp.Close(); closeErr != nil {
			log.Error("error closing display", "error", closeErr)
		}
	}()
	log.Info("display initialised",
		"model", disp.Model(),
		"width", disp.Width(),
		"height", disp.Height(),
		"mock", cfg.Display.Mock,
	)

	// Image store starts unconfigured; credentials normally arrive with
	// the registration acknowledgment. Pre-seeded credentials support
	// deployments without a coordinator.
	store := imagestore.New()
	if cfg.Store.AccessKey != "" {
		if err := store.Configure(imagestore.Credentials{
			Endpoint:  cfg.Store.Endpoint,
			Bucket:    cfg.Store.Bucket,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey,
			Secure:    cfg.Store.Secure,
		}); err != nil {
			return fmt.Errorf("configuring image store: %w", err)
		}
		log.Info("image store pre-configured", "endpoint", cfg.Store.Endpoint)
	}

	// Open the local command log (optional)
	var cmdLog *history.Log
	if cfg.History.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()

		cmdLog, err = history.New(db)
		if err != nil {
			return fmt.Errorf("initialising command history: %w", err)
		}
		log.Info("command history enabled", "path", cfg.History.Path)
	} else {
		log.Info("command history disabled")
	}

	// Connect to InfluxDB (optional)
	var metrics *telemetry.Client
	if cfg.Telemetry.Enabled {
		metrics, err = telemetry.Connect(cfg.Telemetry, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := metrics.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		metrics.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Wire the controller; it owns the bus session and the dispatch loop
	controller := agent.New(agent.Options{
		Config:    cfg,
		Display:   disp,
		Store:     store,
		Telemetry: metrics,
		History:   cmdLog,
		Logger:    log,
		NewSession: func(handlers bus.Handlers) agent.Session {
			return bus.NewSession(cfg.MQTT, cfg.Device.ID, handlers, log)
		},
	})

	log.Info("agent running", "device_id", cfg.Device.ID)
	if err := controller.Run(ctx); err != nil {
		return fmt.Errorf("agent stopped: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// getConfigPath returns the configuration file path.
//
// Checks the INKY_CONFIG environment variable first, then falls back
// to the default path.
func getConfigPath() string {
	if path := os.Getenv("INKY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
