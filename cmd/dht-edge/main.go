package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ghalamif/dhtflow"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		log.Fatalf("dht-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to agent configuration file (optional, DHT_* env vars apply on top)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := dhtflow.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := dhtflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config ok: gateway=%s sensor=%s interval=%s\n",
		cfg.Gateway.Kind, cfg.Sensor.Endpoint, cfg.Agent.SampleInterval)
	return nil
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	url := fs.StringP("url", "u", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.DurationP("interval", "i", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printUsage() {
	fmt.Printf(`DHT edge agent

Usage:
  dht-edge <command> [flags]

Commands:
  run        Sample the sensor and publish telemetry until interrupted
  validate   Load and validate the configuration without starting the agent
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  dht-edge run --config ./data/config.yaml
  DHT_GATEWAY_URL=tcp://edgehub:1883 dht-edge run
  dht-edge validate -c ./data/config.yaml
  dht-edge stats --url http://localhost:9100/metrics --interval 1s
`)
}
