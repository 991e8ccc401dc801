package ports

import (
	"context"
	"time"
)

// Message is one outbound telemetry payload.
type Message struct {
	Topic       string
	Payload     []byte
	ContentType string
	// CapturedAt is when the sample was taken. Zero when unknown.
	CapturedAt time.Time
}

// Publisher forwards telemetry to the gateway. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Name() string
	Close() error
}
