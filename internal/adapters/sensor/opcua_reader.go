package sensor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

// opcuaSession is the subset of *opcua.Client the reader drives.
type opcuaSession interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Close(ctx context.Context) error
}

// OPCUAReader reads temperature and humidity from two OPC UA nodes with a
// single Read request per call. The session is opened on first use and
// dropped after any failure so the next call reconnects.
type OPCUAReader struct {
	endpoint string
	opts     OPCUAOptions
	timeout  time.Duration
	nodes    []*ua.ReadValueID
	dial     func() (opcuaSession, error)
	now      func() time.Time

	mu      sync.Mutex
	session opcuaSession
	closed  bool
}

func NewOPCUAReader(endpoint string, opts OPCUAOptions, timeout time.Duration) (*OPCUAReader, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	nodes := make([]*ua.ReadValueID, 0, 2)
	for _, raw := range []string{opts.TemperatureNode, opts.HumidityNode} {
		id, err := ua.ParseNodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse node id %q: %w", raw, err)
		}
		nodes = append(nodes, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
	}

	r := &OPCUAReader{
		endpoint: endpoint,
		opts:     opts,
		timeout:  timeout,
		nodes:    nodes,
		now:      time.Now,
	}
	r.dial = r.dialClient
	return r, nil
}

func (r *OPCUAReader) dialClient() (opcuaSession, error) {
	client, err := opcua.NewClient(r.endpoint, r.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	return client, nil
}

func (r *OPCUAReader) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(r.opts.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(r.opts.SecurityPolicy)),
		opcua.ApplicationName(r.opts.ApplicationName),
		opcua.RequestTimeout(r.timeout),
	}
	if r.opts.Username != "" {
		opts = append(opts, opcua.AuthUsername(r.opts.Username, r.opts.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (r *OPCUAReader) Read(ctx context.Context) (domain.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.closed {
		return domain.Reading{}, fmt.Errorf("%w: reader closed", ports.ErrSensorUnavailable)
	}

	if r.session == nil {
		session, err := r.dial()
		if err != nil {
			return domain.Reading{}, fmt.Errorf("%w: %w", ports.ErrSensorUnavailable, err)
		}
		if err := session.Connect(ctx); err != nil {
			_ = session.Close(ctx)
			return domain.Reading{}, fmt.Errorf("%w: opcua connect: %w", ports.ErrSensorUnavailable, err)
		}
		r.session = session
	}

	resp, err := r.session.Read(ctx, &ua.ReadRequest{
		MaxAge:             0,
		NodesToRead:        r.nodes,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		r.resetLocked(ctx)
		return domain.Reading{}, fmt.Errorf("%w: opcua read: %w", ports.ErrSensorUnavailable, err)
	}

	values, err := decodeResults(resp, r.opts.TemperatureNode, r.opts.HumidityNode)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("%w: %w", ports.ErrSensorUnavailable, err)
	}

	return domain.Reading{
		Temperature: values[0],
		Humidity:    values[1],
		CapturedAt:  r.now(),
	}, nil
}

func decodeResults(resp *ua.ReadResponse, names ...string) ([]float64, error) {
	if resp == nil || len(resp.Results) != len(names) {
		return nil, fmt.Errorf("opcua read: expected %d results", len(names))
	}
	out := make([]float64, len(names))
	for i, res := range resp.Results {
		if res == nil {
			return nil, fmt.Errorf("node %s: empty result", names[i])
		}
		if res.Status != ua.StatusOK {
			return nil, fmt.Errorf("node %s: %s", names[i], res.Status)
		}
		fv, ok := variantToFloat(res.Value)
		if !ok {
			return nil, fmt.Errorf("node %s: unsupported value %v", names[i], res.Value)
		}
		out[i] = fv
	}
	return out, nil
}

func (r *OPCUAReader) resetLocked(ctx context.Context) {
	if r.session == nil {
		return
	}
	_ = r.session.Close(ctx)
	r.session = nil
}

func (r *OPCUAReader) Endpoint() string { return r.endpoint }

// Close ends the OPC UA session, if one is open. Reads after Close fail
// without dialing.
func (r *OPCUAReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.session == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.session.Close(ctx)
	r.session = nil
	return err
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.SensorReader = (*OPCUAReader)(nil)
