package ports

import "errors"

var (
	// ErrSensorUnavailable wraps every failed sensor read.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrPublishFailed wraps every failed telemetry publish.
	ErrPublishFailed = errors.New("publish failed")
	// ErrInvalidConfigField marks a rejected desired-state field.
	ErrInvalidConfigField = errors.New("invalid config field")
)
