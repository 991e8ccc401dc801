package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/dhtflow/internal/adapters/sensor"
	"github.com/ghalamif/dhtflow/internal/domain"
)

type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Gateway GatewayConfig `yaml:"gateway"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type AgentConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Topic          string        `yaml:"topic"`
	// RemoteConfig disables the desired-state watch when false.
	RemoteConfig *bool `yaml:"remote_config"`
}

type SensorConfig struct {
	Endpoint       string `yaml:"endpoint"`
	sensor.Options `yaml:",inline"`
}

type GatewayConfig struct {
	Kind           string        `yaml:"kind"`
	URL            string        `yaml:"url"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	CAFile         string        `yaml:"ca_file"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            *byte         `yaml:"qos"`
	KVBucket       string        `yaml:"kv_bucket"`
	Table          string        `yaml:"table"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (optional when empty), applies environment overrides from
// the process environment, fills defaults and validates.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	if v, ok := lookup(EnvGatewayURL); ok && v != "" {
		c.Gateway.URL = v
	}
	if v, ok := lookup(EnvGatewayCAFile); ok && v != "" {
		c.Gateway.CAFile = v
	}
	if v, ok := lookup(EnvSensorEndpoint); ok && v != "" {
		c.Sensor.Endpoint = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvSampleIntervalMS); ok && v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvSampleIntervalMS, v)
		}
		c.Agent.SampleInterval = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// ApplyDefaults fills every unset field. Load calls it; programmatic callers
// get it from NewAgentRuntime.
func (c *Config) ApplyDefaults() {
	if c.Agent.SampleInterval == 0 {
		c.Agent.SampleInterval = domain.DefaultSampleInterval
	}
	if c.Agent.PublishTimeout == 0 {
		c.Agent.PublishTimeout = DefaultPublishTimeout * time.Second
	}
	if c.Agent.Topic == "" {
		c.Agent.Topic = "output1"
	}
	if c.Agent.RemoteConfig == nil {
		enabled := true
		c.Agent.RemoteConfig = &enabled
	}
	if c.Sensor.Endpoint == "" {
		c.Sensor.Endpoint = domain.DefaultSensorEndpoint
	}
	c.Sensor.Options.ApplyDefaults()

	if c.Gateway.Kind == "" {
		c.Gateway.Kind = GatewayMQTT
	}
	c.Gateway.Kind = strings.ToLower(c.Gateway.Kind)
	if c.Gateway.QoS == nil && c.Gateway.Kind == GatewayMQTT {
		qos := DefaultMQTTQoS
		c.Gateway.QoS = &qos
	}
	if c.Gateway.KVBucket == "" {
		c.Gateway.KVBucket = DefaultKVBucket
	}
	if c.Gateway.Table == "" {
		c.Gateway.Table = DefaultTimescaleTable
	}
	if c.Gateway.ConnectTimeout <= 0 {
		c.Gateway.ConnectTimeout = 10 * time.Second
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Agent.SampleInterval <= 0 {
		errs = append(errs, errors.New("agent.sample_interval must be positive"))
	}
	if c.Agent.PublishTimeout <= 0 {
		errs = append(errs, errors.New("agent.publish_timeout must be positive"))
	}
	if u, err := url.Parse(c.Sensor.Endpoint); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("sensor.endpoint %q is not a valid URL", c.Sensor.Endpoint))
	}
	if err := c.Sensor.OPCUA.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sensor.opcua: %w", err))
	}

	switch c.Gateway.Kind {
	case GatewayMQTT, GatewayNATS, GatewayTimescale:
		if c.Gateway.URL == "" {
			errs = append(errs, fmt.Errorf("gateway.url is required for %s (or set %s)", c.Gateway.Kind, EnvGatewayURL))
		}
	case GatewayNone:
	default:
		errs = append(errs, fmt.Errorf("gateway.kind %q is not one of mqtt, nats, timescale, none", c.Gateway.Kind))
	}
	if c.Gateway.QoS != nil && *c.Gateway.QoS > 2 {
		errs = append(errs, fmt.Errorf("gateway.qos must be 0, 1 or 2, got %d", *c.Gateway.QoS))
	}
	if c.Gateway.CAFile != "" {
		if _, err := os.Stat(c.Gateway.CAFile); err != nil {
			errs = append(errs, fmt.Errorf("gateway.ca_file: %w", err))
		}
	}
	if c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required"))
	}
	return errors.Join(errs...)
}

// RemoteConfigEnabled reports whether desired-state updates are consumed.
func (c *Config) RemoteConfigEnabled() bool {
	return c.Agent.RemoteConfig == nil || *c.Agent.RemoteConfig
}

// Initial is the configuration the agent starts with.
func (c *Config) Initial() domain.Configuration {
	return domain.Configuration{
		SampleInterval: c.Agent.SampleInterval,
		SensorEndpoint: c.Sensor.Endpoint,
	}
}

// QoSLevel is the configured MQTT QoS, 0 when unset.
func (g GatewayConfig) QoSLevel() byte {
	if g.QoS == nil {
		return 0
	}
	return *g.QoS
}
