package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line. Zero values leave the config file setting in place.
type AppOptions struct {
	ConfigFile         string
	Endpoint           string
	PollIntervalMs     int
	ProgressIntervalMs int
	HttpPort           int
	MqttMode           bool
	HttpMode           bool
	Once               bool
}

// Runner is what run dispatches to; App in production, a mock in tests
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunOnce(out io.Writer) error
	RunService() error
}

func main() {
	err := run(os.Args[1:], os.Stdout, NewApp())
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("solarbot", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	var showVersion bool
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.Endpoint, "endpoint", "", "Telemetry endpoint URL (overrides config)")
	fs.IntVar(&opts.PollIntervalMs, "poll-interval", 0, "Poll interval in milliseconds (overrides config)")
	fs.IntVar(&opts.ProgressIntervalMs, "progress-interval", 0, "Progress simulator interval in milliseconds (overrides config)")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (overrides config, default 8080)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish snapshots to MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve snapshots over HTTP and WebSocket")
	fs.BoolVar(&opts.Once, "once", false, "Poll once, print the snapshot as JSON and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// --once output is a bare JSON document
	if showVersion || !opts.Once {
		fmt.Fprintf(out, "solarbot version: %s\n", Version)
	}
	if showVersion {
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.PollIntervalMs < 0 || opts.ProgressIntervalMs < 0 {
		return fmt.Errorf("intervals must be positive")
	}

	app.ApplyOptions(opts)

	if opts.Once {
		return app.RunOnce(out)
	}

	if opts.MqttMode || opts.HttpMode {
		return app.RunService()
	}

	fmt.Fprintln(out, "solarbot telemetry bridge")
	fmt.Fprintln(out, "Use --once to poll the robot once and print the snapshot")
	fmt.Fprintln(out, "Use --http to serve /api/snapshot and /ws")
	fmt.Fprintln(out, "Use --mqtt to publish snapshots to MQTT")
	fmt.Fprintln(out, "Use --mqtt --http to run both together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - endpoint, intervals, field table and MQTT settings")
	return nil
}
