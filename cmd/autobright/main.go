// autobright - adaptive display brightness daemon
//
// autobright reads an ambient light sensor and drives the display
// backlight from it, scaled by a user-chosen relative level. Any outside
// change to brightness or brightness mode hands control back to the user.
//
// The daemon exposes a local HTTP/WebSocket API, accepts commands over
// MQTT and optionally writes telemetry to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	_ "github.com/sgnexus/autobright/migrations"

	"github.com/sgnexus/autobright/internal/api"
	"github.com/sgnexus/autobright/internal/control"
	"github.com/sgnexus/autobright/internal/display"
	"github.com/sgnexus/autobright/internal/feedback"
	"github.com/sgnexus/autobright/internal/history"
	"github.com/sgnexus/autobright/internal/infrastructure/config"
	"github.com/sgnexus/autobright/internal/infrastructure/database"
	"github.com/sgnexus/autobright/internal/infrastructure/influxdb"
	"github.com/sgnexus/autobright/internal/infrastructure/logging"
	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
	"github.com/sgnexus/autobright/internal/prefs"
	"github.com/sgnexus/autobright/internal/sampler"
	"github.com/sgnexus/autobright/internal/sensor"
	"github.com/sgnexus/autobright/internal/service"
	"github.com/sgnexus/autobright/internal/state"
	"github.com/sgnexus/autobright/internal/strategy"
	"github.com/sgnexus/autobright/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path. A missing file means built-in defaults.
const defaultConfigPath = "configs/config.yaml"

// displayDevice is everything the daemon needs from a brightness backend.
type displayDevice interface {
	control.Gateway
	state.Environment
	display.PowerSource
}

// lightSource is a sensor feed the daemon owns.
type lightSource interface {
	sensor.Source
	Close() error
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting autobright",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Nothing left to report to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	preferences := prefs.NewSQLiteStore(db.DB)
	historyRepo := history.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
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
		log.Info("MQTT disabled")
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Background workers outlive the control loop and finish before the
	// database closes.
	workCtx, stopWorkers := context.WithCancel(context.Background())
	var workers conc.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	// Display, store and sensor
	device, err := openDisplay(cfg, log)
	if err != nil {
		return fmt.Errorf("opening display: %w", err)
	}

	store := state.New(device,
		state.WithLogger(log.Component("state")),
		state.WithLuxEpsilon(cfg.Controller.LuxEpsilon),
		state.WithInitial(state.Snapshot{
			RelativeLevel: cfg.Controller.DefaultLevel,
			Lux:           state.UnknownLux,
			SenseInterval: cfg.SenseInterval(),
		}),
	)

	source, err := openSensor(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("opening light sensor: %w", err)
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			log.Error("error closing light sensor", "error", closeErr)
		}
	}()

	smp := sampler.New(source, store, nil)
	smp.SetLogger(log.Component("sampler"))
	defer smp.Stop()

	strat, err := strategy.ByName(cfg.Controller.Strategy, cfg.Controller.MaxLux)
	if err != nil {
		return fmt.Errorf("selecting strategy: %w", err)
	}

	// Telemetry: InfluxDB, retained MQTT state and SQLite history
	recOpts := telemetry.Options{
		History: historyRepo,
		Logger:  log.Component("telemetry"),
	}
	if influxClient != nil {
		recOpts.Metrics = influxClient
	}
	if mqttClient != nil {
		recOpts.Publisher = mqttClient
	}
	recorder := telemetry.New(store, recOpts)
	recorder.Start()
	defer recorder.Stop()
	workers.Go(func() { recorder.Run(workCtx) })

	signals := feedback.NewFanout(log, feedback.LogSink{Logger: log}, recorder)
	if mqttClient != nil {
		signals.Add(feedback.MQTTSink{Publisher: mqttClient, Logger: log})
	}

	sup := service.New(store)
	sup.SetLogger(log.Component("service"))

	loop, err := control.New(control.Deps{
		Store:     store,
		Gateway:   device,
		Sampler:   smp,
		Strategy:  strat,
		Prefs:     preferences,
		Feedback:  signals,
		Lifecycle: sup,
		Logger:    log.Component("control"),
		Step:      cfg.Controller.Step,
	})
	if err != nil {
		return fmt.Errorf("creating control loop: %w", err)
	}
	sup.Attach(loop)
	defer func() {
		log.Info("stopping control loop")
		sup.Disable()
	}()

	// Remote commands
	if mqttClient != nil {
		if subErr := sup.SubscribeCommands(mqttClient, byte(cfg.MQTT.QoS)); subErr != nil {
			return fmt.Errorf("subscribing to commands: %w", subErr)
		}
		log.Info("listening for MQTT commands",
			"topic", mqtt.Topics{}.Command(),
			"subscriptions", mqttClient.SubscriptionCount())
	}

	// HTTP API
	if cfg.API.Enabled {
		health := map[string]api.HealthChecker{
			"database":   db,
			"migrations": database.MigrationCheck{DB: db},
		}
		if mqttClient != nil {
			health["mqtt"] = service.CommandCheck{Client: mqttClient}
		}
		if influxClient != nil {
			health["influxdb"] = influxClient
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Store:      store,
			Controller: sup,
			History:    historyRepo,
			Health:     health,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		signals.Add(apiServer.FeedbackSink())
	} else {
		log.Info("API disabled")
	}

	if cfg.Display.WatchPower {
		watcher := display.NewPowerWatcher(device, cfg.DisplayPollInterval(), sup.ScreenChanged)
		watcher.SetLogger(log.Component("power"))
		workers.Go(func() { watcher.Run(workCtx) })
	}

	retention := time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour
	workers.Go(func() {
		sup.RunHistoryRetention(workCtx, historyRepo, retention, service.DefaultPruneInterval)
	})

	if cfg.Controller.AutoStart {
		if enableErr := sup.Enable(ctx); enableErr != nil {
			// Not fatal: the user can enable later once the mode is manual.
			log.Warn("control loop did not start", "error", enableErr)
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"strategy", cfg.Controller.Strategy,
		"display", cfg.Display.Backend,
		"sensor", cfg.Sensor.Backend,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, control loop, recorder
	// subscription, sampler, sensor, background workers, InfluxDB, MQTT,
	// database.

	log.Info("autobright stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOBRIGHT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTOBRIGHT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDisplay creates the configured brightness backend.
func openDisplay(cfg *config.Config, log *logging.Logger) (displayDevice, error) {
	switch cfg.Display.Backend {
	case "memory":
		log.Warn("using in-memory display, brightness changes are not applied")
		return display.NewMemory(cfg.Controller.DefaultLevel * state.MaxBrightness / state.MaxLevel), nil
	default:
		bl, err := display.NewBacklight(cfg.Display.BacklightDir, cfg.Display.ModeFile, cfg.DisplayPollInterval())
		if err != nil {
			return nil, err
		}
		bl.SetLogger(log.Component("backlight"))
		log.Info("backlight opened", "dir", cfg.Display.BacklightDir, "max_raw", bl.MaxRaw())
		return bl, nil
	}
}

// openSensor creates the configured light sensor source.
func openSensor(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (lightSource, error) {
	switch cfg.Sensor.Backend {
	case "mqtt":
		if mqttClient == nil {
			return nil, fmt.Errorf("sensor backend mqtt requires an MQTT connection")
		}
		src := sensor.NewMQTTSource(mqttClient, cfg.Sensor.Topic, byte(cfg.MQTT.QoS))
		src.SetLogger(log.Component("sensor"))
		log.Info("light sensor on MQTT", "topic", cfg.Sensor.Topic)
		return src, nil
	default:
		src, err := sensor.NewIIO(cfg.Sensor.IIODevice, cfg.SensorPollInterval())
		if err != nil {
			return nil, err
		}
		src.SetLogger(log.Component("sensor"))
		log.Info("light sensor on IIO", "device", cfg.Sensor.IIODevice)
		return src, nil
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
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
