// Package sensor builds SensorReader implementations for a sensor endpoint.
// The endpoint scheme picks the transport: http(s) for the JSON sensor bridge,
// opc.tcp for a DHT published through an OPC UA server.
package sensor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ghalamif/dhtflow/internal/ports"
)

// New returns a reader bound to endpoint.
func New(endpoint string, opts Options) (ports.SensorReader, error) {
	opts.ApplyDefaults()

	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse sensor endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sensor endpoint %q has no host", endpoint)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPReader(u.String(), opts.Timeout), nil
	case "opc.tcp":
		return NewOPCUAReader(u.String(), opts.OPCUA, opts.Timeout)
	default:
		return nil, fmt.Errorf("sensor endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}

// Factory binds opts so callers can build readers from an endpoint alone.
func Factory(opts Options) func(endpoint string) (ports.SensorReader, error) {
	return func(endpoint string) (ports.SensorReader, error) {
		return New(endpoint, opts)
	}
}
