package dhtflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/dhtflow/internal/ports"
)

// ErrChannelPublisherClosed is returned when a channel publisher is used after being closed.
var ErrChannelPublisherClosed = errors.New("dhtflow: channel publisher closed")

// EventHandler receives every telemetry event with the output name it was sent to.
type EventHandler func(topic string, ev TelemetryEvent) error

// Delivery is what a channel publisher hands to its consumer.
type Delivery struct {
	Topic string
	Event TelemetryEvent
}

// NewCallbackPublisher adapts an EventHandler into a Publisher so callers can
// consume telemetry without defining structs.
func NewCallbackPublisher(name string, fn EventHandler) Publisher {
	if name == "" {
		name = "callback"
	}
	return &callbackPublisher{name: name, fn: fn}
}

// NewChannelPublisher exposes events via a channel; it returns the publisher,
// the read-only channel, and a close function the caller should invoke during
// shutdown. Publish blocks while the buffer is full, bounded by its context.
func NewChannelPublisher(name string, buffer int) (Publisher, <-chan Delivery, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Delivery, buffer)
	p := &channelPublisher{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return p, ch, func() { p.close() }
}

type callbackPublisher struct {
	name string
	fn   EventHandler
}

func (p *callbackPublisher) Publish(_ context.Context, msg ports.Message) error {
	if p.fn == nil {
		return fmt.Errorf("callback publisher %q: nil handler", p.name)
	}
	ev, err := decodeEvent(msg)
	if err != nil {
		return err
	}
	return p.fn(msg.Topic, ev)
}

func (p *callbackPublisher) Name() string { return p.name }
func (p *callbackPublisher) Close() error { return nil }

type channelPublisher struct {
	name   string
	ch     chan Delivery
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (p *channelPublisher) Publish(ctx context.Context, msg ports.Message) error {
	ev, err := decodeEvent(msg)
	if err != nil {
		return err
	}

	// Hold the read lock so close cannot close ch under a pending send.
	p.mu.RLock()
	defer p.mu.RUnlock()
	select {
	case <-p.closed:
		return ErrChannelPublisherClosed
	default:
	}

	select {
	case <-p.closed:
		return ErrChannelPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- Delivery{Topic: msg.Topic, Event: ev}:
		return nil
	}
}

func (p *channelPublisher) Name() string { return p.name }

func (p *channelPublisher) Close() error {
	p.close()
	return nil
}

func (p *channelPublisher) close() {
	p.once.Do(func() {
		close(p.closed)
		p.mu.Lock()
		close(p.ch)
		p.mu.Unlock()
	})
}

func decodeEvent(msg ports.Message) (TelemetryEvent, error) {
	var ev TelemetryEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return TelemetryEvent{}, fmt.Errorf("decode telemetry event: %w", err)
	}
	return ev, nil
}
