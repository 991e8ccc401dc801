package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/dhtflow/pkg/dhtflow"
)

func main() {
	cfg := &dhtflow.Config{
		Gateway: dhtflow.GatewayConfig{Kind: dhtflow.GatewayNone},
		Sensor:  dhtflow.SensorConfig{Endpoint: "http://localhost:3000/"},
	}
	flow, err := dhtflow.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(topic string, ev dhtflow.TelemetryEvent) error {
		fmt.Printf("%s [%s] temperature=%.1f humidity=%.1f\n", ev.TimeCreated, topic, ev.Temperature, ev.Humidity)
		return nil
	}

	if err := flow.Run(ctx, dhtflow.StreamOutCallback("stdout", callback)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
