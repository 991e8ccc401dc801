// Package nats forwards telemetry over core NATS and keeps the desired and
// reported configuration documents in a JetStream key-value bucket.
package nats

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

const (
	KeyDesired  = "desired"
	KeyReported = "reported"

	headerContentType = "Content-Type"
)

type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	Bucket        string
	Username      string
	Password      string
	TLS           *tls.Config
	Timeout       time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "dht-edge"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "dht." + c.Name
	}
	c.SubjectPrefix = strings.TrimRight(c.SubjectPrefix, ".")
	if c.Bucket == "" {
		c.Bucket = "dht_twin"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// conn is the part of *nats.Conn the gateway uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Gateway implements ports.Publisher and ports.ControlPlane.
type Gateway struct {
	cfg  Config
	nc   conn
	kv   jetstream.KeyValue
	once sync.Once
	err  error
}

// New connects to the server and opens (or creates) the configuration bucket.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	cfg.applyDefaults()
	if cfg.URL == "" {
		return nil, errors.New("nats: url is required")
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.TLS != nil {
		opts = append(opts, nats.Secure(cfg.TLS))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}

	kv, err := openBucket(ctx, js, cfg.Bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return newWithConn(cfg, nc, kv), nil
}

func openBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "DHT edge agent desired and reported configuration",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("nats create kv %s: %w", bucket, err)
	}
	return kv, nil
}

func newWithConn(cfg Config, nc conn, kv jetstream.KeyValue) *Gateway {
	cfg.applyDefaults()
	return &Gateway{cfg: cfg, nc: nc, kv: kv}
}

func (g *Gateway) Name() string { return "nats" }

func (g *Gateway) Publish(ctx context.Context, msg ports.Message) error {
	m := nats.NewMsg(g.cfg.SubjectPrefix + "." + msg.Topic)
	m.Data = msg.Payload
	if msg.ContentType != "" {
		m.Header.Set(headerContentType, msg.ContentType)
	}
	if err := g.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	// FlushWithContext needs a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	if err := g.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (g *Gateway) Desired(ctx context.Context) ([]byte, error) {
	entry, err := g.kv.Get(ctx, KeyDesired)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nats kv get %s: %w", KeyDesired, err)
	}
	return entry.Value(), nil
}

// Watch streams puts of the desired key to fn until ctx ends. The current
// value is delivered first, so a put that lands between Desired and Watch
// is not lost; re-applying an unchanged document is a no-op.
func (g *Gateway) Watch(ctx context.Context, fn func([]byte)) error {
	watcher, err := g.kv.Watch(ctx, KeyDesired)
	if err != nil {
		return fmt.Errorf("nats kv watch %s: %w", KeyDesired, err)
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil
			}
			if entry == nil || entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			fn(entry.Value())
		}
	}
}

func (g *Gateway) Report(ctx context.Context, report domain.EffectiveConfigReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("nats report: %w", err)
	}
	if _, err := g.kv.Put(ctx, KeyReported, body); err != nil {
		return fmt.Errorf("nats kv put %s: %w", KeyReported, err)
	}
	return nil
}

// Close drains the connection. Safe to call more than once.
func (g *Gateway) Close() error {
	g.once.Do(func() { g.err = g.nc.Drain() })
	return g.err
}

var (
	_ ports.Publisher    = (*Gateway)(nil)
	_ ports.ControlPlane = (*Gateway)(nil)
)
