package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond)

// ReaderFactory builds a sensor reader bound to endpoint.
type ReaderFactory func(endpoint string) (ports.SensorReader, error)

// Reporter acknowledges effective configuration back to the control plane.
type Reporter interface {
	Report(ctx context.Context, report domain.EffectiveConfigReport) error
}

// SyncHandler validates desired-state updates and applies the valid subset to the Store.
type SyncHandler struct {
	store     *Store
	newReader ReaderFactory
	reporter  Reporter
	obs       ports.Observability
}

// NewSyncHandler wires a handler. reporter may be nil when no control plane is attached.
func NewSyncHandler(store *Store, newReader ReaderFactory, reporter Reporter, obs ports.Observability) *SyncHandler {
	return &SyncHandler{
		store:     store,
		newReader: newReader,
		reporter:  reporter,
		obs:       obs,
	}
}

// HandleDesired parses a raw desired-state document and applies it. It matches
// the callback shape of ports.ControlPlane.Watch.
func (h *SyncHandler) HandleDesired(ctx context.Context, raw []byte) domain.EffectiveConfigReport {
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.EffectiveConfigReport{}
	}
	h.obs.LogInfo("desired_state_received", ports.Field{Key: "document", Value: string(raw)})

	update, err := domain.ParseDesired(raw)
	if err != nil {
		h.obs.IncCounter(ports.MetricConfigRejections, 1)
		h.obs.LogError("desired_state_malformed", fmt.Errorf("%w: %w", ports.ErrInvalidConfigField, err))
		return domain.EffectiveConfigReport{}
	}
	return h.OnUpdateReceived(ctx, update)
}

// OnUpdateReceived applies every valid field of update, logs the rejected ones and
// reports the fields that changed. It never fails.
func (h *SyncHandler) OnUpdateReceived(ctx context.Context, update domain.PendingConfigUpdate) domain.EffectiveConfigReport {
	var patch Patch

	if update.Interval != nil {
		interval, err := parseInterval(update.Interval)
		if err != nil {
			h.reject(domain.KeyInterval, err)
		} else {
			patch.Interval = &interval
		}
	}

	if update.Endpoint != nil {
		endpoint, err := parseEndpoint(update.Endpoint)
		switch {
		case err != nil:
			h.reject(domain.KeyEndpoint, err)
		case endpoint == h.store.Get().Config.SensorEndpoint:
			// unchanged; nothing to build
		default:
			reader, err := h.newReader(endpoint)
			if err != nil {
				h.reject(domain.KeyEndpoint, fmt.Errorf("%w: endpoint %q: %w", ports.ErrInvalidConfigField, endpoint, err))
				break
			}
			patch.Endpoint = &endpoint
			patch.Reader = reader
		}
	}

	snap, report, retired := h.store.Apply(patch)
	if retired != nil && retired != snap.Reader {
		if err := retired.Close(); err != nil {
			h.obs.LogError("sensor_reader_close_failed", err, ports.Field{Key: "endpoint", Value: retired.Endpoint()})
		}
	}

	if report.Empty() {
		return report
	}

	h.obs.IncCounter(ports.MetricConfigUpdates, 1)
	h.obs.SetGauge(ports.MetricSampleInterval, snap.Config.SampleInterval.Seconds())
	h.obs.LogInfo("config_applied",
		ports.Field{Key: "interval", Value: snap.Config.SampleInterval},
		ports.Field{Key: "endpoint", Value: snap.Config.SensorEndpoint})

	if h.reporter != nil {
		if err := h.reporter.Report(ctx, report); err != nil {
			h.obs.LogError("config_report_failed", err)
		}
	}
	return report
}

func (h *SyncHandler) reject(field string, err error) {
	h.obs.IncCounter(ports.MetricConfigRejections, 1)
	h.obs.LogError("config_field_rejected", err, ports.Field{Key: "field", Value: field})
}

// parseInterval accepts a JSON integer, or a string holding one, of milliseconds.
func parseInterval(raw json.RawMessage) (time.Duration, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: interval %s: %w", ports.ErrInvalidConfigField, raw, err)
	}

	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case string:
		text = strings.TrimSpace(val)
	default:
		return 0, fmt.Errorf("%w: interval %s: not a number", ports.ErrInvalidConfigField, raw)
	}

	ms, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: interval %s: out of range", ports.ErrInvalidConfigField, raw)
		}
		return 0, fmt.Errorf("%w: interval %s: not an integer", ports.ErrInvalidConfigField, raw)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%w: interval %d: must be positive", ports.ErrInvalidConfigField, ms)
	}
	if ms > maxIntervalMillis {
		return 0, fmt.Errorf("%w: interval %d: out of range", ports.ErrInvalidConfigField, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseEndpoint(raw json.RawMessage) (string, error) {
	var endpoint string
	if err := json.Unmarshal(raw, &endpoint); err != nil {
		return "", fmt.Errorf("%w: endpoint %s: not a string", ports.ErrInvalidConfigField, raw)
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("%w: endpoint is empty", ports.ErrInvalidConfigField)
	}
	return endpoint, nil
}
