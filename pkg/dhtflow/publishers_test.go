package dhtflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func eventMessage() Message {
	return Message{
		Topic:       "output1",
		Payload:     []byte(`{"timeCreated":"08:15:00","temperature":21.5,"humidity":44}`),
		ContentType: "application/json",
	}
}

func TestNewCallbackPublisher(t *testing.T) {
	var received []TelemetryEvent
	var topic string
	pub := NewCallbackPublisher("cb", func(tp string, ev TelemetryEvent) error {
		topic = tp
		received = append(received, ev)
		return nil
	})

	if err := pub.Publish(context.Background(), eventMessage()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(received) != 1 || topic != "output1" {
		t.Fatalf("expected 1 event on output1, got %d on %q", len(received), topic)
	}
	got := received[0]
	if got.TimeCreated != "08:15:00" || got.Temperature != 21.5 || got.Humidity != 44 {
		t.Fatalf("mismatched event payload: %+v", got)
	}
	if pub.Name() != "cb" {
		t.Fatalf("expected name cb, got %s", pub.Name())
	}
}

func TestNewCallbackPublisherErrors(t *testing.T) {
	if err := NewCallbackPublisher("", nil).Publish(context.Background(), eventMessage()); err == nil {
		t.Fatalf("expected error when callback is nil")
	}

	pub := NewCallbackPublisher("", func(string, TelemetryEvent) error { return nil })
	if err := pub.Publish(context.Background(), Message{Payload: []byte("{")}); err == nil {
		t.Fatalf("expected decode error")
	}

	boom := errors.New("downstream down")
	pub = NewCallbackPublisher("", func(string, TelemetryEvent) error { return boom })
	if err := pub.Publish(context.Background(), eventMessage()); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestNewChannelPublisher(t *testing.T) {
	pub, ch, closeFn := NewChannelPublisher("chan", 0)
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		errCh <- pub.Publish(context.Background(), eventMessage())
	}()

	var d Delivery
	select {
	case d = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel delivery")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if d.Topic != "output1" || d.Event.Humidity != 44 {
		t.Fatalf("unexpected delivery: %+v", d)
	}

	closeFn()
	if err := pub.Publish(context.Background(), eventMessage()); !errors.Is(err, ErrChannelPublisherClosed) {
		t.Fatalf("expected ErrChannelPublisherClosed, got %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestChannelPublisherHonoursContext(t *testing.T) {
	pub, _, closeFn := NewChannelPublisher("chan", 0)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := pub.Publish(ctx, eventMessage()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded with no consumer, got %v", err)
	}
}
