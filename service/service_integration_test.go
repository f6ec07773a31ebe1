//go:build integration

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracewatch/config"
	"github.com/c360/tracewatch/natsclient"
	"github.com/c360/tracewatch/types"
)

// End-to-end: create a rule through the coordinator, publish spans on the
// ingest subject, and receive a signal on the severity subject.
func TestServiceEndToEnd(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())

	cfg := config.Default()
	cfg.NATS.URL = tc.URL
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Scheduler.SweepInterval = 100 * time.Millisecond
	cfg.Scheduler.BufferWindow = 300 * time.Millisecond

	svc, err := New(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	defer func() { require.NoError(t, svc.Stop(10 * time.Second)) }()

	signals := make(chan types.Signal, 4)
	require.NoError(t, tc.Client.Subscribe(ctx, "tracewatch.signals."+types.SeverityCritical, func(_ context.Context, data []byte) {
		var signal types.Signal
		if err := json.Unmarshal(data, &signal); err == nil {
			signals <- signal
		}
	}))

	rule := &types.Rule{
		ID:         "errors-in-checkout",
		Name:       "checkout errors",
		Expression: `trace.has(error) && service == "checkout"`,
		Severity:   types.SeverityCritical,
		Enabled:    true,
	}
	require.NoError(t, svc.Coordinator().CreateRule(ctx, rule))

	span := types.Span{
		SpanID:      "s1",
		TraceID:     "t1",
		ServiceName: "checkout",
		Status:      types.StatusError,
	}
	data, err := json.Marshal(span)
	require.NoError(t, err)
	require.NoError(t, tc.Client.Publish(ctx, cfg.Ingest.Subject, data))

	select {
	case signal := <-signals:
		assert.Equal(t, "errors-in-checkout", signal.RuleID)
		assert.Equal(t, "t1", signal.TraceID)
	case <-time.After(10 * time.Second):
		t.Fatal("no signal received")
	}
}
