package ports

import (
	"context"

	"github.com/ghalamif/dhtflow/internal/domain"
)

// SensorReader performs a single read of the sensor bound at construction.
// Implementations never retry and never return a partial reading.
type SensorReader interface {
	Read(ctx context.Context) (domain.Reading, error)
	Endpoint() string
	Close() error
}
