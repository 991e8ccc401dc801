package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

const maxBodyBytes = 64 << 10

// HTTPReader polls a sensor bridge answering GET with
// {"temperature": <float>, "humidity": <float>}.
type HTTPReader struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

func NewHTTPReader(endpoint string, timeout time.Duration) *HTTPReader {
	return &HTTPReader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

type dhtPayload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (r *HTTPReader) Read(ctx context.Context) (domain.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("%w: build request: %w", ports.ErrSensorUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("%w: %w", ports.ErrSensorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return domain.Reading{}, fmt.Errorf("%w: unexpected status %s", ports.ErrSensorUnavailable, resp.Status)
	}

	var payload dhtPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return domain.Reading{}, fmt.Errorf("%w: decode reading: %w", ports.ErrSensorUnavailable, err)
	}
	if payload.Temperature == nil || payload.Humidity == nil {
		return domain.Reading{}, fmt.Errorf("%w: reading is missing temperature or humidity", ports.ErrSensorUnavailable)
	}

	return domain.Reading{
		Temperature: *payload.Temperature,
		Humidity:    *payload.Humidity,
		CapturedAt:  r.now(),
	}, nil
}

func (r *HTTPReader) Endpoint() string { return r.endpoint }

// Close releases idle keep-alive connections.
func (r *HTTPReader) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

var _ ports.SensorReader = (*HTTPReader)(nil)
