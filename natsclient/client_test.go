package natsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())
	assert.Zero(t, client.Failures())
}

func TestNewClient_OptionError(t *testing.T) {
	badOption := func(*Client) error { return errors.New("bad option") }
	_, err := NewClient("nats://localhost:4222", badOption)
	require.Error(t, err)
}

func TestClient_CircuitBreakerOpensAfterThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(3),
		WithMaxBackoff(time.Minute),
	)
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	// Backoff doubled when the circuit opened
	assert.Equal(t, 2*time.Second, client.Backoff())
}

func TestClient_ResetCircuitClearsFailures(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Zero(t, client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestClient_BackoffCappedAtMax(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(1),
		WithMaxBackoff(4*time.Second),
	)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		client.recordFailure()
	}
	assert.LessOrEqual(t, client.Backoff(), 4*time.Second)
}

func TestClient_OperationsWhenDisconnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()

	assert.ErrorIs(t, client.Publish(ctx, "tracewatch.spans", []byte("{}")), ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe(ctx, "tracewatch.spans", func(context.Context, []byte) {}), ErrNotConnected)

	_, err = client.GetKeyValueBucket(ctx, "rules")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.JetStream()
	assert.Error(t, err)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, client.Close(ctx))
	assert.NoError(t, client.Close(ctx))
}

func TestClient_GetStatusSnapshot(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	client.recordFailure()
	status := client.GetStatus()

	assert.Equal(t, int32(1), status.FailureCount)
	assert.False(t, status.LastFailureTime.IsZero())
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.True(t, isAlreadyExistsError(errors.New("stream name already in use")))
	assert.True(t, isAlreadyExistsError(errors.New("bucket name already in use")))
	assert.False(t, isAlreadyExistsError(errors.New("timeout")))
}
