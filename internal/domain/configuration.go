package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultSampleInterval is the cadence used until the control plane says otherwise.
	DefaultSampleInterval = 5000 * time.Millisecond
	// DefaultSensorEndpoint is the sensor bridge address on the default docker bridge.
	DefaultSensorEndpoint = "http://172.17.0.1:3000/"
)

// Desired-state document keys.
const (
	KeyInterval       = "interval"
	KeyEndpoint       = "endpoint"
	KeyLegacyEndpoint = "localhosturl"
)

// Configuration is the live tunable state of the agent.
type Configuration struct {
	SampleInterval time.Duration
	SensorEndpoint string
}

// DefaultConfiguration returns the startup configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		SampleInterval: DefaultSampleInterval,
		SensorEndpoint: DefaultSensorEndpoint,
	}
}

// PendingConfigUpdate is a sparse desired-state change. A nil field was not
// present in the document; values are kept raw so the sync handler can reject
// malformed ones field by field.
type PendingConfigUpdate struct {
	Interval json.RawMessage
	Endpoint json.RawMessage
}

// Empty reports whether the update carries no recognized field.
func (u PendingConfigUpdate) Empty() bool {
	return u.Interval == nil && u.Endpoint == nil
}

// ParseDesired decodes a desired-state JSON object. Unknown keys are ignored.
// When both "endpoint" and the legacy "localhosturl" are present, "endpoint" wins.
func ParseDesired(raw []byte) (PendingConfigUpdate, error) {
	var update PendingConfigUpdate
	if len(bytes.TrimSpace(raw)) == 0 {
		return update, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return update, fmt.Errorf("decode desired state: %w", err)
	}

	if v, ok := doc[KeyInterval]; ok {
		update.Interval = v
	}
	if v, ok := doc[KeyEndpoint]; ok {
		update.Endpoint = v
	} else if v, ok := doc[KeyLegacyEndpoint]; ok {
		update.Endpoint = v
	}
	return update, nil
}

// EffectiveConfigReport lists the fields an update actually changed.
type EffectiveConfigReport struct {
	IntervalMillis *int64  `json:"interval,omitempty"`
	Endpoint       *string `json:"endpoint,omitempty"`
}

// Empty reports whether nothing changed.
func (r EffectiveConfigReport) Empty() bool {
	return r.IntervalMillis == nil && r.Endpoint == nil
}
