package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

type fakeConn struct {
	mu        sync.Mutex
	msgs      []*nats.Msg
	pubErr    error
	deadlines []bool
	drains    int
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubErr != nil {
		return c.pubErr
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) FlushWithContext(ctx context.Context) error {
	_, ok := ctx.Deadline()
	c.mu.Lock()
	c.deadlines = append(c.deadlines, ok)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drains++
	return nil
}

type fakeEntry struct {
	jetstream.KeyValueEntry
	key   string
	value []byte
	op    jetstream.KeyValueOp
}

func (e *fakeEntry) Key() string                     { return e.key }
func (e *fakeEntry) Value() []byte                   { return e.value }
func (e *fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

type fakeWatcher struct {
	jetstream.KeyWatcher
	updates chan jetstream.KeyValueEntry
	stopped chan struct{}
}

func (w *fakeWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.updates }

func (w *fakeWatcher) Stop() error {
	close(w.stopped)
	return nil
}

type fakeKV struct {
	jetstream.KeyValue

	mu        sync.Mutex
	values    map[string][]byte
	watcher   *fakeWatcher
	watchKey  string
	watchOpts int
	putErr    error
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		values: make(map[string][]byte),
		watcher: &fakeWatcher{
			updates: make(chan jetstream.KeyValueEntry, 4),
			stopped: make(chan struct{}),
		},
	}
}

func (kv *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.values[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &fakeEntry{key: key, value: v, op: jetstream.KeyValuePut}, nil
}

func (kv *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.putErr != nil {
		return 0, kv.putErr
	}
	kv.values[key] = value
	return uint64(len(kv.values)), nil
}

// Watch mirrors the server: without options the current value is replayed,
// followed by the nil marker. Options are opaque outside jetstream, so any
// option suppresses the replay the way UpdatesOnly does.
func (kv *fakeKV) Watch(_ context.Context, key string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.watchKey = key
	kv.watchOpts = len(opts)
	if len(opts) == 0 {
		if v, ok := kv.values[key]; ok {
			kv.watcher.updates <- &fakeEntry{key: key, value: v, op: jetstream.KeyValuePut}
		}
		kv.watcher.updates <- nil
	}
	return kv.watcher, nil
}

func newTestGateway() (*Gateway, *fakeConn, *fakeKV) {
	nc := &fakeConn{}
	kv := newFakeKV()
	return newWithConn(Config{Name: "dht-01"}, nc, kv), nc, kv
}

func TestPublishSetsSubjectAndContentType(t *testing.T) {
	g, nc, _ := newTestGateway()

	err := g.Publish(context.Background(), ports.Message{
		Topic:       "output1",
		Payload:     []byte(`{"humidity":40}`),
		ContentType: "application/json",
	})
	require.NoError(t, err)

	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "dht.dht-01.output1", nc.msgs[0].Subject)
	assert.Equal(t, "application/json", nc.msgs[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"humidity":40}`, string(nc.msgs[0].Data))
	assert.Equal(t, []bool{true}, nc.deadlines, "flush always runs with a deadline")
}

func TestPublishError(t *testing.T) {
	g, nc, _ := newTestGateway()
	nc.pubErr = nats.ErrConnectionClosed

	err := g.Publish(context.Background(), ports.Message{Topic: "output1"})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestDesiredMissingKeyIsEmpty(t *testing.T) {
	g, _, _ := newTestGateway()

	doc, err := g.Desired(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDesiredReturnsStoredDocument(t *testing.T) {
	g, _, kv := newTestGateway()
	kv.values[KeyDesired] = []byte(`{"endpoint":"http://10.0.0.5:3000/"}`)

	doc, err := g.Desired(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"endpoint":"http://10.0.0.5:3000/"}`, string(doc))
}

func TestWatchDeliversPutsOnly(t *testing.T) {
	g, _, kv := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx, func(raw []byte) { got <- string(raw) }) }()

	kv.watcher.updates <- &fakeEntry{key: KeyDesired, op: jetstream.KeyValueDelete}
	kv.watcher.updates <- nil
	kv.watcher.updates <- &fakeEntry{key: KeyDesired, value: []byte(`{"interval":750}`), op: jetstream.KeyValuePut}

	select {
	case doc := <-got:
		assert.Equal(t, `{"interval":750}`, doc)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	<-kv.watcher.stopped
	assert.Equal(t, KeyDesired, kv.watchKey)
	assert.Empty(t, got)
}

func TestWatchDeliversPutMadeAfterDesired(t *testing.T) {
	g, _, kv := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := kv.Put(ctx, KeyDesired, []byte(`{"interval":1000}`))
	require.NoError(t, err)
	doc, err := g.Desired(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"interval":1000}`, string(doc))

	// lands before the watcher is opened
	_, err = kv.Put(ctx, KeyDesired, []byte(`{"interval":2000}`))
	require.NoError(t, err)

	got := make(chan string, 4)
	go func() { _ = g.Watch(ctx, func(raw []byte) { got <- string(raw) }) }()

	select {
	case doc := <-got:
		assert.Equal(t, `{"interval":2000}`, doc)
	case <-time.After(time.Second):
		t.Fatal("put made before Watch was never delivered")
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Zero(t, kv.watchOpts)
}

func TestReportPutsReportedKey(t *testing.T) {
	g, _, kv := newTestGateway()
	endpoint := "http://10.0.0.5:3000/"

	require.NoError(t, g.Report(context.Background(), domain.EffectiveConfigReport{Endpoint: &endpoint}))
	assert.JSONEq(t, `{"endpoint":"http://10.0.0.5:3000/"}`, string(kv.values[KeyReported]))
}

func TestReportError(t *testing.T) {
	g, _, kv := newTestGateway()
	kv.putErr = errors.New("no responders")

	interval := int64(10)
	err := g.Report(context.Background(), domain.EffectiveConfigReport{IntervalMillis: &interval})
	assert.ErrorContains(t, err, "no responders")
}

func TestCloseDrainsOnce(t *testing.T) {
	g, nc, _ := newTestGateway()
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 1, nc.drains)
	assert.Equal(t, "nats", g.Name())
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
