package domain

import "time"

// Reading is one sample taken from the DHT sensor.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CapturedAt  time.Time `json:"captured_at"`
}

// TelemetryEvent is the outbound message published once per successful cycle.
type TelemetryEvent struct {
	TimeCreated string  `json:"timeCreated"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}
