// Package mqtt connects the agent to an MQTT edge hub. One connection carries
// telemetry upstream and the desired/reported configuration documents.
//
// Topic layout under Config.TopicPrefix:
//
//	<prefix>/messages/events/<output>/$.ct=<content type>   telemetry, QoS from config
//	<prefix>/twin/desired                                  retained desired document
//	<prefix>/twin/reported                                 retained effective configuration
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

type Config struct {
	BrokerURL      string
	ClientID       string
	TopicPrefix    string
	Username       string
	Password       string
	QoS            byte
	TLS            *tls.Config
	ConnectTimeout time.Duration
	// DesiredTimeout bounds how long Desired waits for the retained document.
	DesiredTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "dht-edge"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "devices/" + c.ClientID
	}
	c.TopicPrefix = strings.TrimRight(c.TopicPrefix, "/")
	if c.QoS > 2 {
		c.QoS = 1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.DesiredTimeout <= 0 {
		c.DesiredTimeout = 2 * time.Second
	}
}

func (c *Config) validate() error {
	if c.BrokerURL == "" {
		return errors.New("mqtt: broker url is required")
	}
	return nil
}

// Gateway implements ports.Publisher and ports.ControlPlane.
type Gateway struct {
	cfg    Config
	client paho.Client

	// pending holds the newest desired document not yet consumed.
	pending chan []byte

	mu       sync.Mutex
	watching bool

	closeOnce sync.Once
	closeErr  error
}

// New dials the broker and subscribes to the desired-state topic.
func New(cfg Config) (*Gateway, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetCleanSession(true).
		SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}

	client := paho.NewClient(opts)
	if err := wait(client.Connect(), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BrokerURL, err)
	}
	return newWithClient(cfg, client)
}

func newWithClient(cfg Config, client paho.Client) (*Gateway, error) {
	cfg.applyDefaults()
	g := &Gateway{
		cfg:     cfg,
		client:  client,
		pending: make(chan []byte, 1),
	}
	if err := wait(client.Subscribe(g.desiredTopic(), 1, g.onDesired), cfg.ConnectTimeout); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", g.desiredTopic(), err)
	}
	return g, nil
}

func (g *Gateway) Name() string { return "mqtt" }

func (g *Gateway) telemetryTopic(msg ports.Message) string {
	topic := g.cfg.TopicPrefix + "/messages/events/" + msg.Topic
	if msg.ContentType != "" {
		topic += "/$.ct=" + url.QueryEscape(msg.ContentType)
	}
	return topic
}

func (g *Gateway) desiredTopic() string  { return g.cfg.TopicPrefix + "/twin/desired" }
func (g *Gateway) reportedTopic() string { return g.cfg.TopicPrefix + "/twin/reported" }

func (g *Gateway) Publish(ctx context.Context, msg ports.Message) error {
	tok := g.client.Publish(g.telemetryTopic(msg), g.cfg.QoS, false, msg.Payload)
	if err := waitContext(ctx, tok); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// onDesired runs on the paho router goroutine and never blocks: it replaces
// any unconsumed document with the newest one. Desired and Watch consume it.
func (g *Gateway) onDesired(_ paho.Client, m paho.Message) {
	payload := append([]byte(nil), m.Payload()...)

	for {
		select {
		case g.pending <- payload:
			return
		default:
		}
		select {
		case <-g.pending:
		default:
		}
	}
}

// Desired returns the retained desired document, or nil if the broker holds
// none within DesiredTimeout.
func (g *Gateway) Desired(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(g.cfg.DesiredTimeout)
	defer timer.Stop()
	select {
	case doc := <-g.pending:
		return doc, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Watch calls fn on the calling goroutine for each desired document until
// ctx ends. A document that arrived after Desired returned is delivered
// first. Documents that arrive while fn runs collapse to the newest.
func (g *Gateway) Watch(ctx context.Context, fn func([]byte)) error {
	g.mu.Lock()
	if g.watching {
		g.mu.Unlock()
		return errors.New("mqtt: watch already active")
	}
	g.watching = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.watching = false
		g.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case doc := <-g.pending:
			fn(doc)
		}
	}
}

func (g *Gateway) Report(ctx context.Context, report domain.EffectiveConfigReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("mqtt report: %w", err)
	}
	if err := waitContext(ctx, g.client.Publish(g.reportedTopic(), g.cfg.QoS, true, body)); err != nil {
		return fmt.Errorf("mqtt report: %w", err)
	}
	return nil
}

// Close unsubscribes and disconnects. Safe to call more than once.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		if g.client.IsConnected() {
			g.closeErr = wait(g.client.Unsubscribe(g.desiredTopic()), time.Second)
		}
		g.client.Disconnect(250)
	})
	return g.closeErr
}

func wait(tok paho.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return errors.New("timed out")
	}
	return tok.Error()
}

func waitContext(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ ports.Publisher    = (*Gateway)(nil)
	_ ports.ControlPlane = (*Gateway)(nil)
)
