package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/dhtflow/internal/clock"
	"github.com/ghalamif/dhtflow/internal/ports"
)

const (
	// DefaultTopic is the output name telemetry is published under.
	DefaultTopic = "output1"
	// ContentTypeJSON is attached to every published event.
	ContentTypeJSON = "application/json"

	defaultPublishTimeout = 10 * time.Second
)

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithClock swaps the time source, mostly for tests.
func WithClock(c clock.Clock) LoopOption {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithTopic overrides the output name passed to the publisher.
func WithTopic(topic string) LoopOption {
	return func(l *Loop) {
		if topic != "" {
			l.topic = topic
		}
	}
}

// WithPublishTimeout bounds a single publish call.
func WithPublishTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.publishTimeout = d
		}
	}
}

// Loop samples the sensor, formats and publishes one event per cycle, then sleeps
// for the interval of the current configuration. Only one cycle runs at a time.
type Loop struct {
	store          *Store
	pub            ports.Publisher
	obs            ports.Observability
	clock          clock.Clock
	topic          string
	publishTimeout time.Duration
}

func NewLoop(store *Store, pub ports.Publisher, obs ports.Observability, opts ...LoopOption) *Loop {
	l := &Loop{
		store:          store,
		pub:            pub,
		obs:            obs,
		clock:          clock.Real(),
		topic:          DefaultTopic,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Run blocks until ctx is cancelled. Cancellation is observed at the top of each
// cycle and while sleeping; a cycle in progress always completes. Run returns nil
// once cancelled.
func (l *Loop) Run(ctx context.Context) error {
	start := l.store.Get()
	l.obs.SetGauge(ports.MetricSampleInterval, start.Config.SampleInterval.Seconds())
	l.obs.LogInfo("telemetry_loop_started",
		ports.Field{Key: "endpoint", Value: start.Config.SensorEndpoint},
		ports.Field{Key: "interval", Value: start.Config.SampleInterval},
		ports.Field{Key: "publisher", Value: l.pub.Name()})

	for {
		select {
		case <-ctx.Done():
			l.obs.LogInfo("telemetry_loop_stopped")
			return nil
		default:
		}

		l.runCycle(ctx)

		interval := l.store.Get().Config.SampleInterval
		select {
		case <-ctx.Done():
			l.obs.LogInfo("telemetry_loop_stopped")
			return nil
		case <-l.clock.After(interval):
		}
	}
}

// runCycle performs sample, format and publish. Work runs on a context detached
// from ctx so shutdown never interrupts a cycle halfway. Failures are counted
// and logged here; the loop carries on regardless.
func (l *Loop) runCycle(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	snap := l.store.Get()

	reading, err := snap.Reader.Read(work)
	if err != nil {
		if !errors.Is(err, ports.ErrSensorUnavailable) {
			err = fmt.Errorf("%w: %w", ports.ErrSensorUnavailable, err)
		}
		l.obs.IncCounter(ports.MetricSensorReadFailures, 1)
		l.obs.LogError("sensor_read_failed", err, ports.Field{Key: "endpoint", Value: snap.Config.SensorEndpoint})
		return
	}

	now := l.clock.Now()
	event := Format(reading, now)
	payload, err := json.Marshal(event)
	if err != nil {
		l.obs.LogError("telemetry_encode_failed", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(work, l.publishTimeout)
	defer cancel()

	started := time.Now()
	err = l.pub.Publish(pubCtx, ports.Message{
		Topic:       l.topic,
		Payload:     payload,
		ContentType: ContentTypeJSON,
		CapturedAt:  now,
	})
	if err != nil {
		if !errors.Is(err, ports.ErrPublishFailed) {
			err = fmt.Errorf("%w: %w", ports.ErrPublishFailed, err)
		}
		l.obs.IncCounter(ports.MetricPublishFailures, 1)
		l.obs.LogError("publish_failed", err, ports.Field{Key: "publisher", Value: l.pub.Name()})
		return
	}

	l.obs.ObserveLatency(ports.MetricPublishLatency, time.Since(started).Seconds())
	l.obs.IncCounter(ports.MetricSamplesPublished, 1)
	l.obs.LogInfo("dht_data_sent",
		ports.Field{Key: "time_created", Value: event.TimeCreated},
		ports.Field{Key: "temperature", Value: event.Temperature},
		ports.Field{Key: "humidity", Value: event.Humidity})
}
