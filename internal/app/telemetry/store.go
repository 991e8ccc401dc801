package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

// Snapshot pairs the configuration with the reader built for its endpoint.
// Reader.Endpoint() always equals Config.SensorEndpoint.
type Snapshot struct {
	Config domain.Configuration
	Reader ports.SensorReader
}

// Patch is a validated update. Reader must be set, and bound to *Endpoint, whenever Endpoint is.
type Patch struct {
	Interval *time.Duration
	Endpoint *string
	Reader   ports.SensorReader
}

// Store holds the live configuration. Get is lock-free; Apply calls are serialized
// and publish a whole new snapshot, so readers never observe a half-applied patch.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

func NewStore(cfg domain.Configuration, reader ports.SensorReader) *Store {
	s := &Store{}
	s.cur.Store(&Snapshot{Config: cfg, Reader: reader})
	return s
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	return *s.cur.Load()
}

// Apply overwrites the fields present in p and returns the new snapshot, a report
// of the fields whose value changed, and the reader that is no longer referenced
// (the replaced one, or p.Reader when the endpoint did not change). The caller owns
// closing the retired reader.
func (s *Store) Apply(p Patch) (Snapshot, domain.EffectiveConfigReport, ports.SensorReader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	next := *prev
	var (
		report  domain.EffectiveConfigReport
		retired = p.Reader
	)

	if p.Interval != nil && *p.Interval != prev.Config.SampleInterval {
		next.Config.SampleInterval = *p.Interval
		ms := p.Interval.Milliseconds()
		report.IntervalMillis = &ms
	}

	if p.Endpoint != nil && p.Reader != nil && *p.Endpoint != prev.Config.SensorEndpoint {
		endpoint := *p.Endpoint
		next.Config.SensorEndpoint = endpoint
		next.Reader = p.Reader
		retired = prev.Reader
		report.Endpoint = &endpoint
	}

	if report.Empty() {
		return *prev, report, retired
	}
	s.cur.Store(&next)
	return next, report, retired
}
