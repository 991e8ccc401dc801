package dhtflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Flow builds an AgentRuntime in three stages: Conf loads the configuration,
// StreamIN decides what is sampled and where desired state comes from, and
// StreamOUT decides where telemetry goes. Invalid settings are collected and
// reported together by StreamOUT.
type Flow struct {
	cfg  *Config
	opts []AgentRuntimeOption
	errs []error
}

// FlowOption mutates the Flow right after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures sampling and the control plane.
type StreamInOption func(*Flow)

// StreamOutOption configures telemetry delivery.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config. The Flow edits
// cfg in place.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	applyAll(f, opts)
	return f, nil
}

func applyAll[O ~func(*Flow)](f *Flow, opts []O) {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
}

// Config returns the configuration the runtime will be built from.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw AgentRuntimeOption values.
func (f *Flow) Options(opts ...AgentRuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.use(opts...)
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	applyAll(f, opts)
	return f
}

// StreamOUT applies the delivery options and builds the runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*AgentRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	applyAll(f, opts)
	if err := errors.Join(f.errs...); err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}
	return NewAgentRuntime(f.cfg, f.opts...)
}

// Run is StreamOUT followed by runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func (f *Flow) use(opts ...AgentRuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}

func (f *Flow) fail(err error) { f.errs = append(f.errs, err) }

func WithFlowOptions(opts ...AgentRuntimeOption) FlowOption {
	return func(f *Flow) { f.use(opts...) }
}

// StreamInEndpoint sets the initial sensor endpoint. Remote desired state
// may still move it later.
func StreamInEndpoint(endpoint string) StreamInOption {
	return func(f *Flow) {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			f.fail(errors.New("sensor endpoint is empty"))
			return
		}
		f.cfg.Sensor.Endpoint = endpoint
	}
}

// StreamInInterval sets the initial sampling interval.
func StreamInInterval(d time.Duration) StreamInOption {
	return func(f *Flow) {
		if d <= 0 {
			f.fail(fmt.Errorf("sample interval %s must be positive", d))
			return
		}
		f.cfg.Agent.SampleInterval = d
	}
}

// StreamInLocalOnly keeps the agent on its local configuration: no desired
// state is fetched or watched and nothing is reported.
func StreamInLocalOnly() StreamInOption {
	return func(f *Flow) {
		disabled := false
		f.cfg.Agent.RemoteConfig = &disabled
	}
}

// StreamInReader replaces how sensor readers are built, both for the initial
// endpoint and for endpoints received as desired state.
func StreamInReader(fn ReaderFactory) StreamInOption {
	return func(f *Flow) {
		if fn != nil {
			f.use(WithReaderFactory(fn))
		}
	}
}

// StreamInControlPlane injects the source of desired configuration.
func StreamInControlPlane(cp ControlPlane) StreamInOption {
	return func(f *Flow) {
		if cp != nil {
			f.use(WithControlPlane(cp))
		}
	}
}

func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if obs != nil {
			f.use(WithObservability(obs))
		}
	}
}

// StreamOutTopic sets the output topic hint each event is published under.
func StreamOutTopic(topic string) StreamOutOption {
	return func(f *Flow) {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			f.fail(errors.New("output topic is empty"))
			return
		}
		f.cfg.Agent.Topic = topic
	}
}

// StreamOutPublisher injects a custom Publisher in place of the gateway.
func StreamOutPublisher(p Publisher) StreamOutOption {
	return func(f *Flow) {
		if p != nil {
			f.use(WithPublisher(p))
		}
	}
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if obs != nil {
			f.use(WithObservability(obs))
		}
	}
}

// StreamOutCallback delivers each decoded event to fn.
func StreamOutCallback(name string, fn EventHandler) StreamOutOption {
	return func(f *Flow) {
		f.use(WithPublisher(NewCallbackPublisher(name, fn)))
	}
}

// StreamOutChannel delivers events on the returned channel. The runtime
// closes the channel when it shuts down.
func StreamOutChannel(name string, buffer int) (StreamOutOption, <-chan Delivery) {
	pub, ch, _ := NewChannelPublisher(name, buffer)
	return StreamOutPublisher(pub), ch
}
