package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetricExporter(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name: "valid config with HTTP",
			opts: []Option{
				WithServiceName("test-service"),
				WithServiceNamespace("test"),
				WithServiceVersion("1.0.0"),
				WithOTLPEndpoint("localhost:4318"),
				WithEnvironment("test"),
			},
		},
		{
			name: "gRPC takes precedence over HTTP",
			opts: []Option{
				WithOTLPEndpoint(""),
				WithOTLPGRPCEndpoint("localhost:4317"),
			},
		},
		{
			name: "empty OTLP endpoint",
			opts: []Option{
				WithOTLPEndpoint(""),
			},
			wantErr: true,
		},
		{
			name: "manual reader needs no endpoint",
			opts: []Option{
				WithOTLPEndpoint(""),
				WithReader(sdkmetric.NewManualReader()),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithoutGlobal(), WithInterval(time.Hour)}, tt.opts...)
			mc, err := NewMetricExporter(context.Background(), opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, mc.Meter())

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			// Nothing listens on the endpoints, so a failed final export is expected.
			_ = mc.Close(ctx)
		})
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mc, err := NewMetricExporter(context.Background(), WithoutGlobal(), WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mc.Close(context.Background()) })

	inst, err := NewInstruments(mc.Meter())
	require.NoError(t, err)

	ctx := context.Background()
	inst.ConnectionOpened(ctx)
	inst.ConnectionOpened(ctx)
	inst.ConnectionClosed(ctx, "ok")
	inst.MessageDispatched(ctx, "websocket_receive", false)
	inst.MessageDispatched(ctx, "chat_message", false)
	inst.MessageDispatched(ctx, "chat_message", true)
	inst.GroupSent(ctx, "room")

	got := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, got[ActiveConnections], "", ""))
	assert.Equal(t, int64(1), sumFor(t, got[Connections], "outcome", "ok"))
	assert.Equal(t, int64(2), sumFor(t, got[Dispatched], "handler", "chat_message"))
	assert.Equal(t, int64(1), sumFor(t, got[DispatchErrors], "handler", "chat_message"))
	assert.Equal(t, int64(1), sumFor(t, got[GroupSends], "group", "room"))
}

func TestNewInstruments_GlobalMeter(t *testing.T) {
	inst, err := NewInstruments(nil)
	require.NoError(t, err)
	// The global provider is a noop until one is installed.
	inst.GroupSent(context.Background(), "room")
}
