package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var statsMetrics = []string{
	"dht_samples_published_total",
	"dht_sensor_read_failures_total",
	"dht_publish_failures_total",
	"dht_config_updates_total",
	"dht_sample_interval_seconds",
}

func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := parseSnapshot(resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("[%s] published=%.0f read_failures=%.0f publish_failures=%.0f config_updates=%.0f interval=%gs\n",
		time.Now().Format(time.RFC3339),
		values["dht_samples_published_total"],
		values["dht_sensor_read_failures_total"],
		values["dht_publish_failures_total"],
		values["dht_config_updates_total"],
		values["dht_sample_interval_seconds"],
	)
	return nil
}

// parseSnapshot extracts the agent's counters and gauges from a Prometheus
// text exposition.
func parseSnapshot(r io.Reader) (map[string]float64, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	out := make(map[string]float64, len(statsMetrics))
	for _, name := range statsMetrics {
		mf, ok := families[name]
		if !ok {
			continue
		}
		out[name] = sumFamily(mf)
	}
	return out, nil
}

func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		case m.GetUntyped() != nil:
			total += m.GetUntyped().GetValue()
		}
	}
	return total
}
