package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispatchesOnScheme(t *testing.T) {
	r, err := New("http://172.17.0.1:3000/", Options{})
	require.NoError(t, err)
	_, ok := r.(*HTTPReader)
	assert.True(t, ok, "http endpoint should build an HTTPReader, got %T", r)

	r, err = New("HTTPS://sensor.local/dht", Options{})
	require.NoError(t, err)
	_, ok = r.(*HTTPReader)
	assert.True(t, ok)

	r, err = New("opc.tcp://plc.local:4840", Options{})
	require.NoError(t, err)
	op, ok := r.(*OPCUAReader)
	require.True(t, ok, "opc.tcp endpoint should build an OPCUAReader, got %T", r)
	assert.Equal(t, "opc.tcp://plc.local:4840", op.Endpoint())
	// Construction must not dial.
	assert.Nil(t, op.session)
	assert.NoError(t, op.Close())
}

func TestNewRejectsBadEndpoints(t *testing.T) {
	for _, endpoint := range []string{
		"",
		"not a url",
		"ftp://sensor.local/",
		"http://",
		"://missing-scheme",
	} {
		_, err := New(endpoint, Options{})
		assert.Error(t, err, "endpoint %q", endpoint)
	}
}

func TestNewRejectsBadNodeID(t *testing.T) {
	_, err := New("opc.tcp://plc.local:4840", Options{OPCUA: OPCUAOptions{TemperatureNode: "ns=bogus;x"}})
	assert.Error(t, err)
}

func TestFactoryBindsOptions(t *testing.T) {
	build := Factory(Options{})
	r, err := build("http://localhost:3000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/", r.Endpoint())
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.ApplyDefaults()
	assert.Positive(t, opts.Timeout)
	assert.Equal(t, "None", opts.OPCUA.SecurityMode)
	assert.NotEmpty(t, opts.OPCUA.TemperatureNode)
	assert.NotEmpty(t, opts.OPCUA.HumidityNode)
	assert.NoError(t, opts.OPCUA.Validate())
}
