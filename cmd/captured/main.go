// Capture Core - media capture coordination service
//
// captured brokers access to cameras, microphones and shared screens for
// remote requester frames. It owns the request registry, asks an operator
// (or a fixed policy) before anything is opened, hashes device ids per
// origin and reports every outcome to history, MQTT, InfluxDB and the
// WebSocket hub.
//
// Usage:
//
//	captured                  run the service
//	captured hash-password    read a password on stdin, print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/capture-core/internal/api"
	"github.com/nerrad567/capture-core/internal/audit"
	"github.com/nerrad567/capture-core/internal/auth"
	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/hardware"
	"github.com/nerrad567/capture-core/internal/history"
	"github.com/nerrad567/capture-core/internal/infrastructure/config"
	"github.com/nerrad567/capture-core/internal/infrastructure/database"
	"github.com/nerrad567/capture-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/capture-core/internal/infrastructure/logging"
	"github.com/nerrad567/capture-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/capture-core/internal/permission"
	"github.com/nerrad567/capture-core/internal/prompt"
	"github.com/nerrad567/capture-core/internal/salt"
	"github.com/nerrad567/capture-core/internal/telemetry"
	"github.com/nerrad567/capture-core/migrations"
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

const day = 24 * time.Hour

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword reads one line from r and writes its PHC hash to w.
func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Capture Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"prompt_mode", cfg.Prompt.Mode,
		"hardware", cfg.Hardware.Backend,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	applied, err := db.Migrate(ctx, migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)

	checks := map[string]api.HealthChecker{"database": db}

	// Optional sinks. Both are skipped when disabled.
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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

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
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Domain state.
	salts := salt.NewStore(salt.NewSQLiteRepository(db.DB), time.Duration(cfg.Capture.SaltRotationDays)*day)
	historyRepo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(historyRepo, log, time.Duration(cfg.Capture.HistoryRetentionDays)*day)

	perms := permission.NewController(permission.NewSQLiteRepository(db.DB))
	perms.SetLogger(log.Component("permission"))
	if err := perms.Load(ctx); err != nil {
		return err
	}

	hw, err := hardware.New(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("creating hardware backend: %w", err)
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	terminator := api.NewTerminator(hub, log.Component("terminator"))

	broker, err := prompt.New(prompt.Options{
		Mode:        cfg.Prompt.Mode,
		Timeout:     cfg.PromptTimeout(),
		Policy:      perms,
		Screens:     hw.Screens,
		Broadcaster: hub,
	})
	if err != nil {
		return fmt.Errorf("creating prompt broker: %w", err)
	}
	defer broker.Close()
	broker.SetLogger(log.Component("prompt"))

	fanoutOpts := telemetry.Options{
		Service:   cfg.Service.ID,
		Hub:       hub,
		Observers: []capture.Observer{recorder},
		Logger:    log.Component("telemetry"),
	}
	if mqttClient != nil {
		fanoutOpts.Topics = mqttClient.Topics()
		fanoutOpts.MQTT = mqttClient
	}
	if influxClient != nil {
		fanoutOpts.Metrics = influxClient
	}
	fanout := telemetry.NewFanout(fanoutOpts)

	coord, err := capture.New(capture.Deps{
		AudioManager:           hw.Audio,
		VideoManager:           hw.Video,
		Enumerator:             hw.Enumerator,
		Screens:                hw.Screens,
		UI:                     broker,
		Permissions:            perms,
		Terminator:             terminator,
		Observer:               fanout,
		Logger:                 log.Component("capture"),
		ConditionalFocusWindow: cfg.ConditionalFocusWindow(),
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	hw.SetListener(coord)

	if mqttClient != nil {
		if err := startHardwareWatcher(mqttClient, coord, hw, cfg.MQTT.QoS, log); err != nil {
			return err
		}
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Prompt:      cfg.Prompt,
		Logger:      log.Component("api"),
		Coordinator: coord,
		Broker:      broker,
		Permissions: perms,
		Salts:       salts,
		Devices:     hw.Enumerator,
		History:     historyRepo,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Operators:   auth.NewOperators(cfg.Security.Operators),
		Checks:      checks,
		ExternalHub: hub,
		Terminator:  terminator,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return fanout.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("Capture Core stopped")
	return nil
}

// startHardwareWatcher applies hot-plug announcements from MQTT. With the
// catalog backend additions and removals also edit the catalog.
func startHardwareWatcher(client *mqtt.Client, coord *capture.Coordinator, hw *hardware.Backend, qos int, log *logging.Logger) error {
	var catalog telemetry.DeviceCatalog
	if hw.Catalog != nil {
		catalog = hw.Catalog
	}
	watcher := telemetry.NewHardwareWatcher(client.Topics(), coord, catalog, log.Component("hardware"))
	// #nosec G115 -- QoS is validated to 0..2
	if err := watcher.Start(client, byte(qos)); err != nil {
		return err
	}
	log.Info("hardware watcher subscribed", "topic", client.Topics().AllHardware())
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CAPTURE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CAPTURE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck returns the first failing component.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
