package dhtflow

import (
	"github.com/ghalamif/dhtflow/internal/clock"
	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

// Reading is one temperature/humidity measurement.
type Reading = domain.Reading

// TelemetryEvent is the JSON document published per sampling cycle.
type TelemetryEvent = domain.TelemetryEvent

// Configuration is the live, remotely adjustable agent configuration.
type Configuration = domain.Configuration

// EffectiveConfigReport lists the fields a configuration update changed.
type EffectiveConfigReport = domain.EffectiveConfigReport

// SensorReader reads the DHT sensor behind one endpoint.
type SensorReader = ports.SensorReader

// ReaderFactory builds a SensorReader for an endpoint. It is called again
// whenever the endpoint is changed remotely.
type ReaderFactory = func(endpoint string) (ports.SensorReader, error)

// Publisher forwards telemetry messages to a gateway.
type Publisher = ports.Publisher

// Message is one outbound telemetry payload.
type Message = ports.Message

// ControlPlane carries desired configuration in and reported configuration out.
type ControlPlane = ports.ControlPlane

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Clock abstracts time for the sampling loop.
type Clock = clock.Clock

var (
	ErrSensorUnavailable  = ports.ErrSensorUnavailable
	ErrPublishFailed      = ports.ErrPublishFailed
	ErrInvalidConfigField = ports.ErrInvalidConfigField
)
