package dhtflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/dhtflow/internal/adapters/gateway/mqtt"
	"github.com/ghalamif/dhtflow/internal/adapters/gateway/nats"
	"github.com/ghalamif/dhtflow/internal/adapters/gateway/timescale"
	"github.com/ghalamif/dhtflow/internal/adapters/observability"
	"github.com/ghalamif/dhtflow/internal/adapters/sensor"
	"github.com/ghalamif/dhtflow/internal/app/config"
	"github.com/ghalamif/dhtflow/internal/app/telemetry"
	"github.com/ghalamif/dhtflow/internal/ports"
)

// AgentRuntimeOption customizes the dependencies used by AgentRuntime.
type AgentRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	readerFactory ReaderFactory
	publisher     Publisher
	controlPlane  ControlPlane
	observability Observability
	logger        *slog.Logger
	clock         Clock
}

// WithReaderFactory replaces the scheme-based HTTP/OPC UA reader factory.
func WithReaderFactory(fn ReaderFactory) AgentRuntimeOption {
	return func(o *runtimeOverrides) {
		o.readerFactory = fn
	}
}

// WithPublisher sends telemetry to p instead of the configured gateway.
func WithPublisher(p Publisher) AgentRuntimeOption {
	return func(o *runtimeOverrides) {
		o.publisher = p
	}
}

// WithControlPlane injects the source of desired configuration.
func WithControlPlane(cp ControlPlane) AgentRuntimeOption {
	return func(o *runtimeOverrides) {
		o.controlPlane = cp
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) AgentRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger sets the logger used by the default observability backend.
func WithLogger(l *slog.Logger) AgentRuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithClock drives the sampling loop from c.
func WithClock(c Clock) AgentRuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// AgentRuntime wires sensor → telemetry loop → gateway and the control plane
// → sync handler path, and exposes lifecycle hooks for embedding the agent
// in any Go service.
type AgentRuntime struct {
	cfg        *Config
	obs        ports.Observability
	registry   *prometheus.Registry
	store      *telemetry.Store
	handler    *telemetry.SyncHandler
	loop       *telemetry.Loop
	publisher  ports.Publisher
	control    ports.ControlPlane
	metricsSrv *http.Server

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// NewAgentRuntime bootstraps the default adapters: a reader for the initial
// sensor endpoint, the gateway selected by cfg.Gateway.Kind and the
// slog/Prometheus observability stack. Any of them can be overridden.
func NewAgentRuntime(cfg *Config, opts ...AgentRuntimeOption) (*AgentRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg.ApplyDefaults()

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs := overrides.observability
	if obs == nil {
		logger := overrides.logger
		if logger == nil {
			var err error
			logger, err = observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return nil, err
			}
		}
		obs = observability.NewPromObs(logger, registry)
	}

	newReader := overrides.readerFactory
	if newReader == nil {
		newReader = sensor.Factory(cfg.Sensor.Options)
	}
	reader, err := newReader(cfg.Sensor.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("sensor endpoint: %w", err)
	}

	pub, control := overrides.publisher, overrides.controlPlane
	if pub == nil {
		pub, control, err = openGateway(cfg, control)
		if err != nil {
			_ = reader.Close()
			return nil, err
		}
	}
	if !cfg.RemoteConfigEnabled() {
		control = nil
	}

	store := telemetry.NewStore(cfg.Initial(), reader)
	var reporter telemetry.Reporter
	if control != nil {
		reporter = control
	}

	loopOpts := []telemetry.LoopOption{
		telemetry.WithTopic(cfg.Agent.Topic),
		telemetry.WithPublishTimeout(cfg.Agent.PublishTimeout),
	}
	if overrides.clock != nil {
		loopOpts = append(loopOpts, telemetry.WithClock(overrides.clock))
	}

	return &AgentRuntime{
		cfg:       cfg,
		obs:       obs,
		registry:  registry,
		store:     store,
		handler:   telemetry.NewSyncHandler(store, telemetry.ReaderFactory(newReader), reporter, obs),
		loop:      telemetry.NewLoop(store, pub, obs, loopOpts...),
		publisher: pub,
		control:   control,
	}, nil
}

// openGateway builds the configured gateway. control, when already set by
// the caller, wins over the gateway's own control plane.
func openGateway(cfg *Config, control ports.ControlPlane) (ports.Publisher, ports.ControlPlane, error) {
	tlsCfg, err := cfg.Gateway.TLSConfig()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ConnectTimeout)
	defer cancel()

	switch cfg.Gateway.Kind {
	case config.GatewayMQTT:
		gw, err := mqtt.New(mqtt.Config{
			BrokerURL:      cfg.Gateway.URL,
			ClientID:       cfg.Gateway.ClientID,
			TopicPrefix:    cfg.Gateway.TopicPrefix,
			Username:       cfg.Gateway.Username,
			Password:       cfg.Gateway.Password,
			QoS:            cfg.Gateway.QoSLevel(),
			TLS:            tlsCfg,
			ConnectTimeout: cfg.Gateway.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if control == nil {
			control = gw
		}
		return gw, control, nil
	case config.GatewayNATS:
		gw, err := nats.New(ctx, nats.Config{
			URL:           cfg.Gateway.URL,
			Name:          cfg.Gateway.ClientID,
			SubjectPrefix: cfg.Gateway.TopicPrefix,
			Bucket:        cfg.Gateway.KVBucket,
			Username:      cfg.Gateway.Username,
			Password:      cfg.Gateway.Password,
			TLS:           tlsCfg,
			Timeout:       cfg.Gateway.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if control == nil {
			control = gw
		}
		return gw, control, nil
	case config.GatewayTimescale:
		pub, err := timescale.Open(ctx, cfg.Gateway.URL, cfg.Gateway.Table)
		if err != nil {
			return nil, nil, err
		}
		return pub, control, nil
	case config.GatewayNone:
		return nil, nil, fmt.Errorf("gateway kind %q requires WithPublisher", config.GatewayNone)
	default:
		return nil, nil, fmt.Errorf("unknown gateway kind %q", cfg.Gateway.Kind)
	}
}

// Start pulls the current desired state, starts watching for changes and
// launches the metrics server. It returns immediately; call Run to block.
func (a *AgentRuntime) Start(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("agent runtime is nil")
	}

	if a.control == nil {
		a.obs.LogInfo("remote_config_disabled", ports.Field{Key: "gateway", Value: a.publisher.Name()})
	} else {
		raw, err := a.control.Desired(ctx)
		if err != nil {
			a.obs.LogError("desired_state_fetch_failed", err)
		} else {
			a.handler.HandleDesired(ctx, raw)
		}

		watchCtx, cancel := context.WithCancel(ctx)
		a.watchCancel = cancel
		a.watchDone = make(chan struct{})
		go func() {
			defer close(a.watchDone)
			err := a.control.Watch(watchCtx, func(raw []byte) {
				a.handler.HandleDesired(watchCtx, raw)
			})
			if err != nil {
				a.obs.LogCritical("desired_state_watch_stopped", err)
			}
		}()
	}

	a.startMetrics()
	return nil
}

// Run starts the runtime and blocks in the sampling loop until ctx is
// cancelled, then shuts down gracefully.
func (a *AgentRuntime) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	loopErr := a.loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(loopErr, a.Shutdown(shutdownCtx))
}

// Current returns the live configuration.
func (a *AgentRuntime) Current() Configuration {
	return a.store.Get().Config
}

// ApplyDesired feeds a desired-state document through the same path as the
// control plane and returns what changed.
func (a *AgentRuntime) ApplyDesired(ctx context.Context, raw []byte) EffectiveConfigReport {
	return a.handler.HandleDesired(ctx, raw)
}

// Shutdown stops the watch, the metrics server, the gateway and the sensor
// reader. Safe to call more than once.
func (a *AgentRuntime) Shutdown(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error

		if a.watchCancel != nil {
			a.watchCancel()
			select {
			case <-a.watchDone:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("waiting for desired-state watch: %w", ctx.Err()))
			}
		}

		if a.metricsSrv != nil {
			if err := a.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}

		if a.control != nil {
			if err := a.control.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close control plane: %w", err))
			}
		}
		if a.publisher != nil && !samePort(a.publisher, a.control) {
			if err := a.publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher %s: %w", a.publisher.Name(), err))
			}
		}

		if reader := a.store.Get().Reader; reader != nil {
			if err := reader.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sensor reader: %w", err))
			}
		}

		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func samePort(p ports.Publisher, c ports.ControlPlane) bool {
	if c == nil {
		return false
	}
	cp, ok := p.(ports.ControlPlane)
	return ok && cp == c
}

func (a *AgentRuntime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.obs.LogError("metrics_server_exited", err)
		}
	}()
}
