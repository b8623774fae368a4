package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwv/solarbot/telemetry"
)

const (
	defaultConfigFile = "config.yaml"
	onceTimeout       = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *telemetry.Config
	Engine     *telemetry.Engine
	MQTTClient *telemetry.MQTTClient
	Publisher  *telemetry.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile         string
	Endpoint           string
	PollIntervalMs     int
	ProgressIntervalMs int
	HttpPort           int
	MqttMode           bool
	HttpMode           bool

	// EngineOptions are passed to telemetry.NewEngine (tests inject a source here).
	EngineOptions []telemetry.EngineOption

	// ready receives the HTTP listener address once serving; used by tests.
	ready chan<- string
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{ConfigFile: defaultConfigFile}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Endpoint = opts.Endpoint
	a.PollIntervalMs = opts.PollIntervalMs
	a.ProgressIntervalMs = opts.ProgressIntervalMs
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file if it exists, otherwise starts from
// defaults, then applies the command line overrides.
func (a *App) loadConfig() (*telemetry.Config, error) {
	config := telemetry.DefaultConfig()

	if a.ConfigFile != "" {
		if _, err := os.Stat(a.ConfigFile); err == nil {
			loaded, err := telemetry.LoadConfig(a.ConfigFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
			}
			config = loaded
			log.Printf("Loaded config from %s", a.ConfigFile)
		} else if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config at %s, using defaults", a.ConfigFile)
		} else {
			return nil, fmt.Errorf("checking config %s: %w", a.ConfigFile, err)
		}
	}

	if a.Endpoint != "" {
		config.EndpointURL = a.Endpoint
	}
	if a.PollIntervalMs > 0 {
		config.PollIntervalMs = a.PollIntervalMs
	}
	if a.ProgressIntervalMs > 0 {
		config.ProgressIntervalMs = a.ProgressIntervalMs
	}
	if a.HttpPort > 0 {
		config.HTTP.Port = a.HttpPort
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// setup loads the config and builds the engine
func (a *App) setup() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Config = config

	engine, err := telemetry.NewEngine(config, a.EngineOptions...)
	if err != nil {
		return err
	}
	a.Engine = engine
	return nil
}

// RunOnce polls the robot once and writes the resulting snapshot to out as JSON.
// An unreachable robot is not an error: the snapshot carries the failure.
func (a *App) RunOnce(out io.Writer) error {
	if err := a.setup(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), onceTimeout)
	defer cancel()

	snap, res := a.Engine.PollOnce(ctx)
	if res.Err != nil {
		log.Printf("[POLL] %v", res.Err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// RunService runs the engine with the enabled outputs until SIGINT or SIGTERM
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

// serve runs until ctx is done
func (a *App) serve(ctx context.Context) error {
	fmt.Println("Starting solarbot service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.setup(); err != nil {
		return err
	}
	store := a.Engine.Store()
	table, err := a.Config.FieldTable()
	if err != nil {
		return err
	}
	log.Printf("Polling %s every %v (variant %s, policy %s, keys %v)",
		a.Config.EndpointURL, a.Config.PollInterval(), a.Config.Variant, a.Config.ProgressPolicy, table.Keys())

	var publishDone chan struct{}
	if a.MqttMode {
		mqttClient, err := telemetry.InitMQTT(a.Config.MQTT)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return errors.New("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient
		a.Publisher = telemetry.NewPublisherFor(mqttClient)
		a.Publisher.SetQoS(a.Config.MQTT.QoS)
		a.Publisher.SetRetain(a.Config.MQTT.RetainSnapshots())

		publishDone = make(chan struct{})
		go func() {
			defer close(publishDone)
			a.Publisher.Run(ctx, store)
		}()
		fmt.Println("MQTT snapshot publisher initialized")
	}

	var srv *http.Server
	if a.HttpMode {
		addr := fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			a.shutdownMQTT(publishDone)
			return fmt.Errorf("[HTTP] listen on %s: %w", addr, err)
		}
		srv = &http.Server{
			Handler:           newHTTPServer(store),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", ln.Addr())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
			}
		}()
		if a.ready != nil {
			a.ready <- ln.Addr().String()
		}
	}

	a.printServiceInfo()

	// Blocks until ctx is done and both loops have stopped.
	a.Engine.Run(ctx)

	fmt.Println("\nShutting down service...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
	}
	a.shutdownMQTT(publishDone)
	fmt.Println("Service stopped")
	return nil
}

func (a *App) shutdownMQTT(publishDone chan struct{}) {
	if publishDone != nil {
		<-publishDone
	}
	if a.Publisher != nil {
		log.Printf("[MQTT] published %d snapshots", a.Publisher.Published())
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}

func (a *App) printServiceInfo() {
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode && a.MQTTClient != nil {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Snapshot:   %s (retained)\n", a.MQTTClient.SnapshotTopic())
		fmt.Printf("  Connection: %s (online/offline)\n", a.MQTTClient.ConnectionTopic())
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		fmt.Println("  GET /health        - Health check")
		fmt.Println("  GET /api/snapshot  - Current snapshot as JSON")
		fmt.Println("  GET /ws            - WebSocket stream of snapshot changes")
	}

	fmt.Println("\nPress Ctrl+C to stop")
}
