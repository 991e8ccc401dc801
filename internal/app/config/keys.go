package config

// Environment variables that override the YAML file.
const (
	EnvGatewayURL       = "DHT_GATEWAY_URL"
	EnvGatewayCAFile    = "DHT_GATEWAY_CA_FILE"
	EnvSensorEndpoint   = "DHT_SENSOR_ENDPOINT"
	EnvSampleIntervalMS = "DHT_SAMPLE_INTERVAL_MS"
	EnvLogLevel         = "DHT_LOG_LEVEL"
)

// Gateway kinds.
const (
	GatewayMQTT      = "mqtt"
	GatewayNATS      = "nats"
	GatewayTimescale = "timescale"
	// GatewayNone builds no gateway; the caller supplies a publisher.
	GatewayNone = "none"
)

const (
	DefaultMetricsAddr    = ":9100"
	DefaultPublishTimeout = 10
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultTimescaleTable = "dht_readings"
	DefaultKVBucket       = "dht_twin"

	DefaultMQTTQoS byte = 1
)
