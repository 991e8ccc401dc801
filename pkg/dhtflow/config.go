package dhtflow

import (
	"github.com/ghalamif/dhtflow/internal/adapters/sensor"
	"github.com/ghalamif/dhtflow/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// AgentConfig holds the sampling interval, output name and timeouts.
	AgentConfig = config.AgentConfig
	// SensorConfig holds the initial sensor endpoint and reader options.
	SensorConfig = config.SensorConfig
	// SensorOptions tunes HTTP and OPC UA readers.
	SensorOptions = sensor.Options
	// OPCUAOptions names the temperature and humidity nodes.
	OPCUAOptions = sensor.OPCUAOptions
	// GatewayConfig selects and configures the message gateway.
	GatewayConfig = config.GatewayConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig selects the slog level and format.
	LogConfig = config.LogConfig
)

const (
	GatewayMQTT      = config.GatewayMQTT
	GatewayNATS      = config.GatewayNATS
	GatewayTimescale = config.GatewayTimescale
	GatewayNone      = config.GatewayNone
)

// LoadConfig loads YAML from disk (path may be empty) and applies the DHT_*
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
