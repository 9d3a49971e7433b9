// mqttconnect opens one MQTT session over TCP or WebSocket, with optional
// single or mutual TLS, and keeps it until shutdown.
//
// Every connection attempt is logged, and optionally journaled to SQLite
// and written to InfluxDB. An optional status API exposes the connection
// and the journal.
//
// Usage:
//
//	mqttconnect [--config path]
//	mqttconnect token --subject ops --role viewer --ttl 1h
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-connector/internal/api"
	"github.com/nerrad567/gray-logic-connector/internal/audit"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-connector/internal/transport"
	"github.com/nerrad567/gray-logic-connector/migrations"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs the connector.
func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "mqttconnect",
		Short:         "MQTT connector with TCP/WebSocket transports and TLS",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(configFlag))
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default $MQTTCONNECT_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newTokenCmd(&configFlag))
	return root
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mqttconnect",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	var recorders transport.MultiRecorder

	// Attempt journal (optional)
	var db *database.DB
	var repo *audit.SQLiteRepository
	if cfg.Audit.Enabled {
		db, err = database.Open(cfg.Audit)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Audit.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		repo = audit.NewSQLiteRepository(db.DB)
		recorders = append(recorders, repo)
	} else {
		log.Info("attempt journal disabled")
	}

	// Attempt metrics (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB,
			influxdb.WithDefaultTag("client_id", cfg.MQTT.Broker.ClientID),
		)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	mqttLog := log.Component("mqtt")
	handlerOpts := []any{
		mqtt.WithLogger(mqttLog),
		mqtt.WithOnConnect(func() {
			mqttLog.Info("MQTT session up")
		}),
		mqtt.WithOnDisconnect(func(err error) {
			mqttLog.Warn("MQTT session lost", "error", err)
		}),
	}
	if timeout := cfg.Transport.GetConnectTimeout(); timeout > 0 {
		handlerOpts = append(handlerOpts, mqtt.WithConnectTimeout(timeout))
	}
	conn, err := transport.NewFromConfig(cfg, handlerOpts...)
	if err != nil {
		return fmt.Errorf("creating connector: %w", err)
	}
	conn.SetLogger(log.Component("connector"))
	if len(recorders) > 0 {
		conn.SetRecorder(recorders)
	}

	if _, err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"transport", conn.Transport(),
		"broker", conn.BrokerURL(),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Status API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			Logger:    log.Component("api"),
			Connector: conn,
			Version:   version,
		}
		// Only assign wired backends so the interfaces stay nil otherwise.
		if repo != nil {
			deps.Attempts = repo
			deps.Database = db
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}

		server, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	if err := healthCheck(ctx, conn.Handler(), db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, MQTT, InfluxDB, database.
	log.Info("mqttconnect stopped")
	return nil
}

// getConfigPath returns the configuration file path: the --config flag,
// then MQTTCONNECT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("MQTTCONNECT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the MQTT session and any enabled backends.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, handler *mqtt.Handler, db *database.DB, influxClient *influxdb.Client) error {
	if err := handler.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
