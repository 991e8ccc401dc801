package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

// Metric names understood by the Prometheus observability adapter.
const (
	MetricSamplesPublished   = "dht_samples_published_total"
	MetricSensorReadFailures = "dht_sensor_read_failures_total"
	MetricPublishFailures    = "dht_publish_failures_total"
	MetricConfigUpdates      = "dht_config_updates_total"
	MetricConfigRejections   = "dht_config_rejections_total"
	MetricSampleInterval     = "dht_sample_interval_seconds"
	MetricPublishLatency     = "dht_publish_latency_seconds"
)
