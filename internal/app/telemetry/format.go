// Package telemetry holds the agent core: the configuration store, the
// desired-state sync handler and the sampling loop that ties a sensor reader
// to a publisher.
package telemetry

import (
	"time"

	"github.com/ghalamif/dhtflow/internal/domain"
)

// TimeCreatedLayout is the informational wall-clock format of TelemetryEvent.TimeCreated.
const TimeCreatedLayout = "15:04:05"

// Format turns a reading into the outbound event stamped with now in local time.
func Format(r domain.Reading, now time.Time) domain.TelemetryEvent {
	return domain.TelemetryEvent{
		TimeCreated: now.Local().Format(TimeCreatedLayout),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	}
}
