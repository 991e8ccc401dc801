package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

var errSensorDown = errors.New("connection refused")

type readResult struct {
	reading domain.Reading
	err     error
}

// stubReader replays scripted results; after the script runs out it repeats the last one.
type stubReader struct {
	endpoint string
	mu       sync.Mutex
	script   []readResult
	calls    int
	reads    chan int
	closed   atomic.Bool
}

func newStubReader(endpoint string, script ...readResult) *stubReader {
	if len(script) == 0 {
		script = []readResult{{reading: domain.Reading{Temperature: 21.5, Humidity: 40}}}
	}
	return &stubReader{endpoint: endpoint, script: script, reads: make(chan int, 128)}
}

func (s *stubReader) Read(context.Context) (domain.Reading, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	n := s.calls
	res := s.script[idx]
	s.mu.Unlock()

	s.reads <- n
	return res.reading, res.err
}

func (s *stubReader) Endpoint() string { return s.endpoint }

func (s *stubReader) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *stubReader) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingPublisher struct {
	mu        sync.Mutex
	msgs      []ports.Message
	failNext  int
	published chan ports.Message
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{published: make(chan ports.Message, 128)}
}

func (p *recordingPublisher) Publish(_ context.Context, msg ports.Message) error {
	p.mu.Lock()
	if p.failNext > 0 {
		p.failNext--
		p.mu.Unlock()
		return errors.New("gateway unreachable")
	}
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()

	p.published <- msg
	return nil
}

func (p *recordingPublisher) Name() string { return "recording" }
func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Messages() []ports.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.Message(nil), p.msgs...)
}

type recordingObs struct {
	mu       sync.Mutex
	errors   []error
	counters map[string]float64
}

func newRecordingObs() *recordingObs {
	return &recordingObs{counters: make(map[string]float64)}
}

func (o *recordingObs) LogInfo(string, ...ports.Field) {}
func (o *recordingObs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}
func (o *recordingObs) LogCritical(string, error, ...ports.Field) {}
func (o *recordingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}
func (o *recordingObs) ObserveLatency(string, float64) {}
func (o *recordingObs) SetGauge(string, float64)       {}

func (o *recordingObs) Counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}

func (o *recordingObs) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errors...)
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []domain.EffectiveConfigReport
	err     error
}

func (r *recordingReporter) Report(_ context.Context, report domain.EffectiveConfigReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return r.err
}

func (r *recordingReporter) Reports() []domain.EffectiveConfigReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EffectiveConfigReport(nil), r.reports...)
}

// stubFactory hands out stub readers and remembers them by endpoint.
type stubFactory struct {
	mu      sync.Mutex
	built   map[string][]*stubReader
	failFor string
}

func newStubFactory() *stubFactory {
	return &stubFactory{built: make(map[string][]*stubReader)}
}

func (f *stubFactory) New(endpoint string) (ports.SensorReader, error) {
	if endpoint == f.failFor {
		return nil, errors.New("unsupported scheme")
	}
	r := newStubReader(endpoint)
	f.mu.Lock()
	f.built[endpoint] = append(f.built[endpoint], r)
	f.mu.Unlock()
	return r, nil
}

func int64Ptr(v int64) *int64    { return &v }
func stringPtr(s string) *string { return &s }
