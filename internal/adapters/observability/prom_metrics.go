package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/dhtflow/internal/ports"
)

// PromObs backs ports.Observability with a slog logger and Prometheus
// collectors registered on reg. Unknown metric names are ignored.
type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSamplesPublished,
		Help: "Telemetry events accepted by the gateway.",
	})
	readFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSensorReadFailures,
		Help: "Sampling cycles skipped because the sensor could not be read.",
	})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricPublishFailures,
		Help: "Telemetry events the gateway refused or timed out on. They are not retried.",
	})
	updates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricConfigUpdates,
		Help: "Remote configuration updates that changed at least one field.",
	})
	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricConfigRejections,
		Help: "Remote configuration fields rejected as invalid.",
	})
	interval := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricSampleInterval,
		Help: "Current sampling interval.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricPublishLatency,
		Help:    "Time from handing an event to the gateway until it is acknowledged.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(published, readFailures, publishFailures, updates, rejections, interval, latency)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricSamplesPublished:   published,
			ports.MetricSensorReadFailures: readFailures,
			ports.MetricPublishFailures:    publishFailures,
			ports.MetricConfigUpdates:      updates,
			ports.MetricConfigRejections:   rejections,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricSampleInterval: interval,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricPublishLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(nil, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, attrs(err, fields)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(err, fields), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(err error, fields []ports.Field) []any {
	out := make([]any, 0, len(fields)+1)
	if err != nil {
		out = append(out, slog.Any("error", err))
	}
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
