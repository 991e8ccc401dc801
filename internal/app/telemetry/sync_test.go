package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

type syncFixture struct {
	store    *Store
	initial  *stubReader
	factory  *stubFactory
	reporter *recordingReporter
	obs      *recordingObs
	handler  *SyncHandler
}

func newSyncFixture() *syncFixture {
	f := &syncFixture{
		initial:  newStubReader(domain.DefaultSensorEndpoint),
		factory:  newStubFactory(),
		reporter: &recordingReporter{},
		obs:      newRecordingObs(),
	}
	f.store = NewStore(domain.DefaultConfiguration(), f.initial)
	f.handler = NewSyncHandler(f.store, f.factory.New, f.reporter, f.obs)
	return f
}

func raw(v string) json.RawMessage { return json.RawMessage(v) }

func TestSyncAppliesValidInterval(t *testing.T) {
	f := newSyncFixture()

	report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Interval: raw("10000")})

	assert.Equal(t, int64Ptr(10000), report.IntervalMillis)
	assert.Nil(t, report.Endpoint)
	assert.Equal(t, 10*time.Second, f.store.Get().Config.SampleInterval)
	require.Len(t, f.reporter.Reports(), 1)
	assert.Equal(t, report, f.reporter.Reports()[0])
	assert.Equal(t, 1.0, f.obs.Counter(ports.MetricConfigUpdates))
}

func TestSyncAcceptsNumericStringInterval(t *testing.T) {
	f := newSyncFixture()

	report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Interval: raw(`"2500"`)})

	assert.Equal(t, int64Ptr(2500), report.IntervalMillis)
	assert.Equal(t, 2500*time.Millisecond, f.store.Get().Config.SampleInterval)
}

func TestSyncRejectsInvalidIntervals(t *testing.T) {
	cases := map[string]string{
		"zero":        "0",
		"negative":    "-5",
		"fractional":  "2.5",
		"exponent":    "1e3",
		"text":        `"soon"`,
		"null":        "null",
		"bool":        "true",
		"object":      `{"ms":5}`,
		"overflowing": "99999999999999999999",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			f := newSyncFixture()

			report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Interval: raw(value)})

			assert.True(t, report.Empty())
			assert.Equal(t, domain.DefaultSampleInterval, f.store.Get().Config.SampleInterval)
			assert.Empty(t, f.reporter.Reports(), "no report for a rejected-only update")
			require.Len(t, f.obs.Errors(), 1)
			assert.True(t, errors.Is(f.obs.Errors()[0], ports.ErrInvalidConfigField))
			assert.Equal(t, 1.0, f.obs.Counter(ports.MetricConfigRejections))
		})
	}
}

func TestSyncRejectsEmptyEndpoint(t *testing.T) {
	for name, value := range map[string]string{"empty": `""`, "blank": `"   "`, "null": "null", "number": "42"} {
		t.Run(name, func(t *testing.T) {
			f := newSyncFixture()

			report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Endpoint: raw(value)})

			assert.True(t, report.Empty())
			snap := f.store.Get()
			assert.Equal(t, domain.DefaultSensorEndpoint, snap.Config.SensorEndpoint)
			assert.Same(t, f.initial, snap.Reader)
			assert.Empty(t, f.reporter.Reports())
			assert.Empty(t, f.factory.built)
		})
	}
}

func TestSyncSwapsReaderOnEndpointChange(t *testing.T) {
	f := newSyncFixture()
	endpoint := "http://192.168.1.20:3000/"

	report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Endpoint: raw(`"` + endpoint + `"`)})

	require.NotNil(t, report.Endpoint)
	assert.Equal(t, endpoint, *report.Endpoint)
	snap := f.store.Get()
	assert.Equal(t, endpoint, snap.Config.SensorEndpoint)
	require.Len(t, f.factory.built[endpoint], 1)
	assert.Same(t, f.factory.built[endpoint][0], snap.Reader)
	assert.True(t, f.initial.closed.Load(), "replaced reader is closed")
}

func TestSyncSameEndpointBuildsNothing(t *testing.T) {
	f := newSyncFixture()

	report := f.handler.OnUpdateReceived(context.Background(),
		domain.PendingConfigUpdate{Endpoint: raw(`"` + domain.DefaultSensorEndpoint + `"`)})

	assert.True(t, report.Empty())
	assert.Empty(t, f.factory.built)
	assert.False(t, f.initial.closed.Load())
}

func TestSyncRejectsUnbuildableEndpoint(t *testing.T) {
	f := newSyncFixture()
	f.factory.failFor = "ftp://sensor/"

	report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{
		Interval: raw("1000"),
		Endpoint: raw(`"ftp://sensor/"`),
	})

	assert.Equal(t, int64Ptr(1000), report.IntervalMillis)
	assert.Nil(t, report.Endpoint)
	assert.Equal(t, domain.DefaultSensorEndpoint, f.store.Get().Config.SensorEndpoint)
	require.Len(t, f.obs.Errors(), 1)
	assert.True(t, errors.Is(f.obs.Errors()[0], ports.ErrInvalidConfigField))
}

func TestSyncAppliesValidSubsetOfPartiallyMalformedUpdate(t *testing.T) {
	f := newSyncFixture()
	endpoint := "http://10.1.1.1:3000/"

	report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{
		Interval: raw("-1"),
		Endpoint: raw(`"` + endpoint + `"`),
	})

	assert.Nil(t, report.IntervalMillis)
	require.NotNil(t, report.Endpoint)
	snap := f.store.Get()
	assert.Equal(t, domain.DefaultSampleInterval, snap.Config.SampleInterval)
	assert.Equal(t, endpoint, snap.Config.SensorEndpoint)
}

func TestSyncNoRecognizedFieldsIsIdempotent(t *testing.T) {
	f := newSyncFixture()
	before := f.store.Get()

	report := f.handler.HandleDesired(context.Background(), []byte(`{"$version": 3, "localhusturl": "http://x/"}`))

	assert.True(t, report.Empty())
	assert.Equal(t, before, f.store.Get())
	assert.Empty(t, f.reporter.Reports())
	assert.Empty(t, f.obs.Errors())
}

func TestSyncHandleDesiredLegacyEndpointKey(t *testing.T) {
	f := newSyncFixture()

	report := f.handler.HandleDesired(context.Background(), []byte(`{"interval": 3000, "localhosturl": "http://10.9.9.9:3000/"}`))

	assert.Equal(t, int64Ptr(3000), report.IntervalMillis)
	assert.Equal(t, stringPtr("http://10.9.9.9:3000/"), report.Endpoint)
}

func TestSyncHandleDesiredMalformedDocument(t *testing.T) {
	f := newSyncFixture()

	report := f.handler.HandleDesired(context.Background(), []byte(`{"interval":`))

	assert.True(t, report.Empty())
	require.Len(t, f.obs.Errors(), 1)
	assert.True(t, errors.Is(f.obs.Errors()[0], ports.ErrInvalidConfigField))
}

func TestSyncReportFailureIsNotFatal(t *testing.T) {
	f := newSyncFixture()
	f.reporter.err = errors.New("twin update rejected")

	report := f.handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Interval: raw("8000")})

	assert.Equal(t, int64Ptr(8000), report.IntervalMillis)
	assert.Equal(t, 8*time.Second, f.store.Get().Config.SampleInterval)
	require.Len(t, f.obs.Errors(), 1)
}

func TestSyncWithoutReporter(t *testing.T) {
	store := NewStore(domain.DefaultConfiguration(), newStubReader(domain.DefaultSensorEndpoint))
	handler := NewSyncHandler(store, newStubFactory().New, nil, newRecordingObs())

	report := handler.OnUpdateReceived(context.Background(), domain.PendingConfigUpdate{Interval: raw("1500")})

	assert.Equal(t, int64Ptr(1500), report.IntervalMillis)
}
