package ports

import (
	"context"

	"github.com/ghalamif/dhtflow/internal/domain"
)

// ControlPlane carries desired configuration in and effective configuration out.
type ControlPlane interface {
	// Desired returns the last-known desired-state document, or nil when none exists.
	Desired(ctx context.Context) ([]byte, error)
	// Watch invokes fn for every later desired-state document until ctx is done.
	Watch(ctx context.Context, fn func(raw []byte)) error
	// Report acknowledges the fields an update changed.
	Report(ctx context.Context, report domain.EffectiveConfigReport) error
	Close() error
}
