package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/dhtflow"
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

	out, deliveries := dhtflow.StreamOutChannel("fanout", 16)
	go comfortWorker(deliveries)

	if err := flow.StreamIN(dhtflow.StreamInInterval(2*time.Second)).Run(ctx, out); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// comfortWorker flags readings outside a typical indoor comfort band.
func comfortWorker(deliveries <-chan dhtflow.Delivery) {
	for d := range deliveries {
		ev := d.Event
		status := "ok"
		if ev.Temperature < 18 || ev.Temperature > 26 || ev.Humidity < 30 || ev.Humidity > 60 {
			status = "out of range"
		}
		fmt.Printf("%s temperature=%.1f humidity=%.1f %s\n", ev.TimeCreated, ev.Temperature, ev.Humidity, status)
	}
}
