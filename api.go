package dhtflow

import (
	"log/slog"
	"time"

	base "github.com/ghalamif/dhtflow/pkg/dhtflow"
)

// Re-exported errors for convenience.
var (
	ErrSensorUnavailable      = base.ErrSensorUnavailable
	ErrPublishFailed          = base.ErrPublishFailed
	ErrInvalidConfigField     = base.ErrInvalidConfigField
	ErrChannelPublisherClosed = base.ErrChannelPublisherClosed
)

// Type aliases so consumers can import github.com/ghalamif/dhtflow directly.
type (
	Config                = base.Config
	AgentConfig           = base.AgentConfig
	SensorConfig          = base.SensorConfig
	SensorOptions         = base.SensorOptions
	OPCUAOptions          = base.OPCUAOptions
	GatewayConfig         = base.GatewayConfig
	MetricsConfig         = base.MetricsConfig
	LogConfig             = base.LogConfig
	Flow                  = base.Flow
	FlowOption            = base.FlowOption
	StreamInOption        = base.StreamInOption
	StreamOutOption       = base.StreamOutOption
	AgentRuntime          = base.AgentRuntime
	AgentRuntimeOption    = base.AgentRuntimeOption
	Reading               = base.Reading
	TelemetryEvent        = base.TelemetryEvent
	Configuration         = base.Configuration
	EffectiveConfigReport = base.EffectiveConfigReport
	SensorReader          = base.SensorReader
	ReaderFactory         = base.ReaderFactory
	Publisher             = base.Publisher
	Message               = base.Message
	ControlPlane          = base.ControlPlane
	Observability         = base.Observability
	Field                 = base.Field
	Clock                 = base.Clock
	EventHandler          = base.EventHandler
	Delivery              = base.Delivery
)

const (
	GatewayMQTT      = base.GatewayMQTT
	GatewayNATS      = base.GatewayNATS
	GatewayTimescale = base.GatewayTimescale
	GatewayNone      = base.GatewayNone
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...AgentRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInEndpoint(endpoint string) StreamInOption {
	return base.StreamInEndpoint(endpoint)
}

func StreamInInterval(d time.Duration) StreamInOption {
	return base.StreamInInterval(d)
}

func StreamInLocalOnly() StreamInOption {
	return base.StreamInLocalOnly()
}

func StreamInReader(fn ReaderFactory) StreamInOption {
	return base.StreamInReader(fn)
}

func StreamInControlPlane(cp ControlPlane) StreamInOption {
	return base.StreamInControlPlane(cp)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutTopic(topic string) StreamOutOption {
	return base.StreamOutTopic(topic)
}

func StreamOutChannel(name string, buffer int) (StreamOutOption, <-chan Delivery) {
	return base.StreamOutChannel(name, buffer)
}

func StreamOutPublisher(p Publisher) StreamOutOption {
	return base.StreamOutPublisher(p)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn EventHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Agent runtime and options.
func NewAgentRuntime(cfg *Config, opts ...AgentRuntimeOption) (*AgentRuntime, error) {
	return base.NewAgentRuntime(cfg, opts...)
}

func WithReaderFactory(fn ReaderFactory) AgentRuntimeOption {
	return base.WithReaderFactory(fn)
}

func WithPublisher(p Publisher) AgentRuntimeOption {
	return base.WithPublisher(p)
}

func WithControlPlane(cp ControlPlane) AgentRuntimeOption {
	return base.WithControlPlane(cp)
}

func WithObservability(obs Observability) AgentRuntimeOption {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) AgentRuntimeOption {
	return base.WithLogger(l)
}

func WithClock(c Clock) AgentRuntimeOption {
	return base.WithClock(c)
}

// Publisher adapters.
func NewCallbackPublisher(name string, fn EventHandler) Publisher {
	return base.NewCallbackPublisher(name, fn)
}

func NewChannelPublisher(name string, buffer int) (Publisher, <-chan Delivery, func()) {
	return base.NewChannelPublisher(name, buffer)
}
