// Gray Logic Identity - account, credential and access-control service
//
// This is the main entry point for the identity service. It provides:
//   - Self-service registration with e-mail confirmation
//   - HS256 bearer credentials with long-lived refresh tokens
//   - Role- and permission-based access control over an HTTP API
//   - A live activity feed and audit trail of account flows
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-identity/migrations"

	"github.com/nerrad567/gray-logic-identity/internal/api"
	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-identity/internal/notify"
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

// auditBufferSize is the number of audit entries buffered before Log drops.
const auditBufferSize = 1024

// shutdownTimeout bounds how long background workers get to finish.
const shutdownTimeout = 10 * time.Second

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting identity service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and the permission catalogue
	users := auth.NewUserRepository(db.DB)
	roles := auth.NewRoleRepository(db.DB)
	perms := auth.NewPermissionRepository(db.DB)
	refreshRepo := auth.NewTokenRepository(db.DB)
	ephemeralRepo := auth.NewEphemeralTokenRepository(db.DB)
	catalog := auth.NewPermissionCatalog(perms, cfg.Cache.PermissionSize, cfg.Cache.PermissionTTL)

	// Connect to MQTT broker (optional, carries notifications)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, notifications will be logged")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Background workers run until shutdown, then drain.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	queue := notify.NewQueue(newNotificationSender(cfg, mqttClient, log), notify.Links{
		ConfirmURL: cfg.Notifications.ConfirmURL,
		ResetURL:   cfg.Notifications.ResetURL,
	}, cfg.Notifications.QueueSize, log)
	queue.Start(workerCtx)
	defer func() {
		log.Info("draining notification queue", "pending", queue.Pending())
		queue.Close()
	}()

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, auditBufferSize, log)
	auditWriter.Start(workerCtx)
	defer func() {
		log.Info("flushing audit log")
		auditWriter.Close()
	}()

	hub := api.NewHub(log)
	go hub.Run(workerCtx)

	metrics := api.NewMetrics()

	activity := auth.MultiActivitySink{hub, metrics, auditWriter}
	if influxClient != nil {
		activity = append(activity, auth.ActivitySinkFunc(func(_ context.Context, ev auth.ActivityEvent) {
			influxClient.WriteAuthEvent(influxdb.AuthEvent{
				Kind:    string(ev.Kind),
				Outcome: ev.Outcome,
				Reason:  ev.Reason,
				At:      ev.OccurredAt,
			})
		}))
	}

	accounts := auth.NewAccounts(auth.AccountsDeps{
		Users:         users,
		Roles:         roles,
		Codec:         auth.NewCodec(cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL()),
		Refresh:       auth.NewRefreshTokens(refreshRepo, cfg.Security.Tokens.RefreshTTL),
		Ephemeral:     auth.NewEphemeralTokens(ephemeralRepo, cfg.Security.Tokens.EphemeralTTL),
		Notifier:      queue,
		Activity:      activity,
		Logger:        log.Logger,
		RotateRefresh: cfg.Security.Tokens.RotateRefresh,
	})

	if _, err := auth.SeedSuperAdmin(ctx, users, roles,
		cfg.Security.Bootstrap.Email, cfg.Security.Bootstrap.Password, log.Logger); err != nil {
		return fmt.Errorf("seeding super admin: %w", err)
	}

	sweeper := auth.NewSweeper(refreshRepo, ephemeralRepo,
		cfg.Security.Tokens.EphemeralTTL, cfg.Maintenance.SweepGrace, log.Logger)
	if err := sweeper.Start(cfg.Maintenance.SweepSchedule); err != nil {
		return fmt.Errorf("starting token sweeper: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sweeper.Stop(stopCtx)
	}()

	deps := api.Deps{
		Config:      cfg.API,
		Security:    cfg.Security,
		Logger:      log,
		DB:          db.DB,
		Accounts:    accounts,
		Engine:      auth.NewEngine(roles, users, catalog),
		Checks:      auth.NewChecks(users, roles, perms),
		AuditRepo:   auditRepo,
		AuditWriter: auditWriter,
		Metrics:     metrics,
		ExternalHub: hub,
		Version:     version,
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
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

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, sweeper, audit
	// writer, notification queue, InfluxDB, MQTT, database.

	log.Info("identity service stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IDENTITY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IDENTITY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newNotificationSender publishes notifications over MQTT when a broker is
// connected and logs them otherwise.
func newNotificationSender(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) notify.Sender {
	if mqttClient == nil {
		return notify.NewLogSender(log)
	}
	return notify.NewMQTTSender(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS))
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled (nil).
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
