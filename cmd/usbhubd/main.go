// usbhubd - HTTP control service for the SmartUSBHub
//
// The hub is a four-channel USB hub whose per-channel power and data
// lines are switched over a single serial control link. That link only
// tolerates one client, so this daemon owns the serial connection and
// exposes it to any number of HTTP clients, serialising their commands
// through one device session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openusb/usbhubd/internal/api"
	"github.com/openusb/usbhubd/internal/hub"
	"github.com/openusb/usbhubd/internal/infrastructure/config"
	"github.com/openusb/usbhubd/internal/infrastructure/logging"
	"github.com/openusb/usbhubd/internal/infrastructure/mqtt"
	"github.com/openusb/usbhubd/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "unknown"
)

// flags holds the command line overrides. Flags beat both the config
// file and environment variables, matching the original service's CLI.
type flags struct {
	configPath string
	serialPort string
	host       string
	httpPort   int
	logLevel   string
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("usbhubd", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to config file (optional)")
	fs.StringVar(&f.serialPort, "port", "", "serial port of the hub (default: auto-scan)")
	fs.StringVar(&f.host, "host", "", "HTTP listen host")
	fs.IntVar(&f.httpPort, "http-port", 0, "HTTP listen port")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting usbhubd", "version", version, "commit", commit)

	// Connect to the device before binding the listener. A service that
	// cannot reach its hub should fail fast, not accept doomed requests.
	conn, err := connectDevice(ctx, cfg, log)
	if err != nil {
		return err
	}

	manager := session.New(conn, log.With("component", "session"))
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing device session", "error", closeErr)
		}
	}()

	info, err := manager.Info(ctx)
	if err != nil {
		return fmt.Errorf("reading device info: %w", err)
	}
	log.Info("hub connected",
		"port", info.Port,
		"firmware", info.Firmware,
		"serial_number", info.SerialNumber,
		"channels", info.ChannelCount,
	)

	// Optional MQTT state publishing.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer mqttClient.Close()

		seedRetainedState(ctx, manager, mqttClient, log)
	} else {
		log.Info("MQTT disabled")
	}

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		Session: manager,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Fan state changes out to MQTT and WebSocket clients.
	manager.SetOnChange(func(ev session.Event) {
		if mqttClient != nil {
			mqttClient.HandleChange(ev)
		}
		server.BroadcastChange(ev)
	})

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("usbhubd ready", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// loadConfig builds the effective configuration: defaults, then the
// optional config file with env overrides, then command line flags.
func loadConfig(f *flags) (*config.Config, error) {
	var cfg *config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if f.serialPort != "" {
		cfg.Serial.Port = f.serialPort
	}
	if f.host != "" {
		cfg.API.Host = f.host
	}
	if f.httpPort != 0 {
		cfg.API.Port = f.httpPort
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connectDevice opens the configured serial port, or scans for the hub
// when no port is configured.
func connectDevice(ctx context.Context, cfg *config.Config, log *logging.Logger) (hub.Conn, error) {
	hubCfg := hub.Config{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		ReadTimeout: cfg.Serial.GetReadTimeout(),
	}

	if hubCfg.Port != "" {
		log.Info("connecting to hub", "port", hubCfg.Port)
		conn, err := hub.Open(hubCfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to hub: %w", err)
		}
		return conn, nil
	}

	log.Info("no serial port configured, scanning")
	scanCtx, cancel := context.WithTimeout(ctx, cfg.Serial.GetScanTimeout())
	defer cancel()

	conn, err := hub.Scan(scanCtx, hubCfg)
	if err != nil {
		if errors.Is(err, hub.ErrNoDevice) {
			return nil, fmt.Errorf("no hub found: %w", err)
		}
		return nil, fmt.Errorf("scanning for hub: %w", err)
	}
	log.Info("hub discovered", "port", conn.Port())
	return conn, nil
}

// seedRetainedState publishes the current state of every channel so
// MQTT subscribers see real values before the first change.
func seedRetainedState(ctx context.Context, manager *session.Manager, client *mqtt.Client, log *logging.Logger) {
	channels := []hub.Channel{1, 2, 3, 4}

	power, err := manager.PowerStatus(ctx, channels)
	if err != nil {
		log.Warn("seeding power state failed", "error", err)
	} else {
		client.PublishStates("power", power.Map())
	}

	dataline, err := manager.DatalineStatus(ctx, channels)
	if err != nil {
		log.Warn("seeding dataline state failed", "error", err)
	} else {
		client.PublishStates("dataline", dataline.Map())
	}
}
