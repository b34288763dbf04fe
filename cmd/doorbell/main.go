// Doorbell controller.
//
// Detects people at the front door with a PIR sensor, plays a random clip
// on a serial MP3 module and takes remote commands over MQTT. The process
// exits non-zero when the network is unavailable at boot and after a
// remote update, so the service supervisor restarts it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-doorbell/migrations"

	"github.com/nerrad567/gray-logic-doorbell/internal/audit"
	"github.com/nerrad567/gray-logic-doorbell/internal/command"
	"github.com/nerrad567/gray-logic-doorbell/internal/doorbell"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-doorbell/internal/peripheral"
	"github.com/nerrad567/gray-logic-doorbell/internal/peripheral/dfplayer"
	"github.com/nerrad567/gray-logic-doorbell/internal/peripheral/execplayer"
	"github.com/nerrad567/gray-logic-doorbell/internal/peripheral/gpio"
	"github.com/nerrad567/gray-logic-doorbell/internal/presence"
	"github.com/nerrad567/gray-logic-doorbell/internal/settings"
	"github.com/nerrad567/gray-logic-doorbell/internal/update"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when neither -config nor DOORBELL_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// exitRestart tells the supervisor a staged update is waiting.
	exitRestart = 3

	// auditRetention is how long remote command records are kept.
	auditRetention = 30 * 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, doorbell.ErrRestart) {
			os.Exit(exitRestart)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run boots the controller and blocks until ctx is cancelled. It returns
// doorbell.ErrRestart after a remote update has been staged.
func run(ctx context.Context, args []string) error {
	log := logging.Default()
	log.Info("booting doorbell",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, err := getConfigPath(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("hostname", cfg.Device.Hostname)
	log.Info("configuration loaded", "path", configPath)

	// Without a network there is nothing useful to do; exit and let the
	// supervisor restart the service.
	ip, err := waitForNetwork(ctx, interfaceAddress(cfg.Network.Interface), cfg.JoinTimeout(), networkPollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Error("connection failed, restarting", "error", err, "restart_in", cfg.RestartDelay())
		sleepOrDone(ctx, cfg.RestartDelay())
		return fmt.Errorf("joining network: %w", err)
	}
	log.Info("ready on the local network", "ip", ip.String())

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Settings.Path,
		BusyTimeout: cfg.Settings.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening settings database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	store := settings.NewSQLiteStore(db.DB, cfg.Settings.Namespace)
	volume, err := store.GetInt(ctx, settings.KeyVolume, cfg.Audio.DefaultVolume)
	if err != nil {
		log.Warn("reading volume failed, using default", "error", err, "volume", volume)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	if n, pruneErr := auditRepo.Prune(ctx, time.Now().Add(-auditRetention)); pruneErr != nil {
		log.Warn("pruning command audit failed", "error", pruneErr)
	} else if n > 0 {
		log.Info("pruned command audit", "removed", n)
	}

	metrics := doorbell.NewMetrics()
	metrics.SetVolume(volume)

	telemetry := connectTelemetry(ctx, cfg, log)
	defer telemetry.Close() //nolint:errcheck // Close never fails

	hw, err := openPeripherals(ctx, cfg, metrics, log)
	if err != nil {
		return err
	}
	gateway := hw.gateway
	defer func() {
		if closeErr := hw.close(); closeErr != nil {
			log.Error("error closing peripherals", "error", closeErr)
		}
	}()

	client := mqtt.New(cfg.MQTT, log.Component("mqtt"))
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	wireTransport(client, metrics, telemetry, log)

	dispatcher, err := command.NewDispatcher(cfg.MQTT.Topics, command.Deps{
		Player:        gateway,
		Settings:      store,
		Notifier:      client,
		Recorder:      auditRepo,
		Logger:        log.Component("command"),
		DefaultVolume: cfg.Audio.DefaultVolume,
		OnCommand: func(kind command.Kind) {
			metrics.CommandExecuted(kind)
			telemetry.WriteCommand(kind.String())
		},
		OnVolume: func(v int) {
			metrics.SetVolume(v)
			telemetry.WriteVolume(v)
		},
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	client.SetHandler(func(topic string, payload []byte) error {
		return dispatcher.Dispatch(ctx, topic, payload)
	})

	server, err := update.New(update.Deps{
		Config:   cfg.Update,
		Hostname: cfg.Device.Hostname,
		Version:  version,
		Logger:   log.Component("update"),
		Metrics:  metrics,
		Commands: auditRepo,
		Notifier: client,
		Checks:   healthChecks(db, client, telemetry),
		Status: func() update.Status {
			st := update.Status{
				MQTT:   client.State().String(),
				Volume: metrics.Volume(),
				Ticks:  metrics.Ticks.Get(),
			}
			if hw.clips != nil {
				stats := hw.clips.Stats()
				st.Player = &stats
			}
			return st
		},
	})
	if err != nil {
		return fmt.Errorf("creating update server: %w", err)
	}
	if cfg.Update.Listen != "" {
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting update server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(context.Background()); closeErr != nil {
				log.Error("error closing update server", "error", closeErr)
			}
		}()
	}

	// Blocks until the broker accepts us; the first connect announces
	// itself on the status topic.
	if err := client.EnsureConnected(ctx); err != nil {
		return nil //nolint:nilerr // Only fails on shutdown
	}
	client.Notify("IP address: " + ip.String())
	client.Notify("Hostname: " + cfg.Device.Hostname)
	client.Notify(fmt.Sprintf("Volume from settings: %d", volume))

	if err := gateway.Initialize(ctx, volume); err != nil {
		log.Warn("audio module self test failed", "error", err)
	}

	machine := presence.New(presence.Config{
		Cooldown:    cfg.Cooldown(),
		CatalogSize: cfg.Audio.CatalogSize,
	}, client, nil)

	device, err := doorbell.New(doorbell.Config{TickInterval: cfg.TickInterval()}, doorbell.Deps{
		Transport:   client,
		Peripherals: gateway,
		Machine:     machine,
		Updater:     server,
		Telemetry:   telemetry,
		Metrics:     metrics,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	log.Info("initialisation complete", "volume", volume)
	if err := device.Run(ctx); err != nil {
		if errors.Is(err, doorbell.ErrRestart) {
			log.Info("restarting for update")
		}
		return err
	}

	log.Info("doorbell stopped")
	return nil
}

// getConfigPath returns the configuration file path: the -config flag,
// then DOORBELL_CONFIG, then the default.
func getConfigPath(args []string) (string, error) {
	fs := flag.NewFlagSet("doorbell", flag.ContinueOnError)
	path := fs.String("config", "", "path to config.yaml (overrides DOORBELL_CONFIG)")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing flags: %w", err)
	}
	if *path != "" {
		return *path, nil
	}
	if env := os.Getenv("DOORBELL_CONFIG"); env != "" {
		return env, nil
	}
	return defaultConfigPath, nil
}

// connectTelemetry connects to InfluxDB when enabled. Telemetry is optional:
// on failure the returned nil client silently drops every write.
func connectTelemetry(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Hostname)
	if err != nil {
		log.Warn("InfluxDB unavailable, telemetry off", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Warn("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return client
}

// wireTransport connects the messaging client's lifecycle callbacks to
// metrics, telemetry and the log.
func wireTransport(client *mqtt.Client, metrics *doorbell.Metrics, telemetry *influxdb.Client, log *logging.Logger) {
	client.SetOnConnect(func(first bool) {
		metrics.Connects.Inc()
		event := "reconnected"
		if first {
			event = "connected"
		}
		telemetry.WriteConnection(event, client.Attempts())
		log.Info("MQTT "+event, "attempts", client.Attempts())
	})
	client.SetOnConnectFailed(func(error) {
		metrics.ConnectFailures.Inc()
		telemetry.WriteConnection("connect_failed", client.Attempts())
	})
	client.SetOnDisconnect(func(err error) {
		metrics.Disconnects.Inc()
		telemetry.WriteConnection("lost", client.Attempts())
		log.Warn("MQTT disconnected", "error", err)
	})
	metrics.Gauge("doorbell_mqtt_connected", func() float64 {
		if client.State() == mqtt.StateConnected {
			return 1
		}
		return 0
	})
}

// openPeripherals opens the input pins and the configured audio backend.
// hardware is the opened peripheral stack.
type hardware struct {
	gateway *peripheral.Gateway

	// clips is set with the exec audio driver.
	clips *execplayer.Player

	close func() error
}

func openPeripherals(ctx context.Context, cfg *config.Config, metrics *doorbell.Metrics, log *logging.Logger) (*hardware, error) {
	pins, err := gpio.Open(cfg.GPIO)
	if err != nil {
		return nil, fmt.Errorf("opening GPIO: %w", err)
	}

	var (
		module peripheral.Module
		busy   peripheral.Sensor = pins.Busy
		clips  *execplayer.Player
		reset  bool
	)
	switch cfg.Audio.Driver {
	case "exec":
		clipLog := log.Component("player")
		clips = execplayer.New(ctx, execplayer.Config{
			Binary:   cfg.Audio.Player,
			Args:     cfg.Audio.PlayerArgs,
			TrackDir: cfg.Audio.TrackDir,
			OnClipFailed: func(err error) {
				metrics.PlaybackErrors.Inc()
				clipLog.Warn("clip failed", "error", err)
			},
		}, clipLog)
		module, busy = clips, clips
	default:
		player, openErr := dfplayer.Open(cfg.Audio.SerialPort, cfg.Audio.BaudRate)
		if openErr != nil {
			pins.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("opening MP3 module: %w", openErr)
		}
		go player.Watch(log.Component("dfplayer"))
		module, reset = player, true
	}

	gateway, err := peripheral.NewGateway(pins.Motion, busy, module, peripheral.Config{
		SettleDelay: cfg.SettleDelay(),
		BootDelay:   cfg.BootDelay(),
		ResetOnInit: reset,
	}, log.Component("peripheral"))
	if err != nil {
		module.Close() //nolint:errcheck // Best effort cleanup on error path
		pins.Close()   //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating peripheral gateway: %w", err)
	}

	log.Info("peripherals ready",
		"gpio_driver", cfg.GPIO.Driver,
		"audio_driver", cfg.Audio.Driver,
		"motion_pin", cfg.GPIO.MotionPin,
		"busy_pin", cfg.GPIO.BusyPin,
	)

	return &hardware{
		gateway: gateway,
		clips:   clips,
		close: func() error {
			return errors.Join(gateway.Close(), pins.Close())
		},
	}, nil
}

// healthChecks lists the dependencies GET /health probes. Telemetry is only
// included when it is configured and reachable at boot.
func healthChecks(db *database.DB, client *mqtt.Client, telemetry *influxdb.Client) map[string]update.HealthChecker {
	checks := map[string]update.HealthChecker{
		"database": db,
		"mqtt":     client,
	}
	if telemetry != nil {
		checks["influxdb"] = telemetry
	}
	return checks
}

// sleepOrDone waits for d or until ctx is cancelled.
func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
