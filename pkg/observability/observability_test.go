package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "oceanlog-api", config.ServiceName)
	require.Equal(t, "1.0.0", config.ServiceVersion)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Should not fail even when disabled
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("test.key", "test.value"),
	}

	newCtx, finish := p.TrackOperation(ctx, "test.operation", attrs...)
	require.NotNil(t, newCtx)

	time.Sleep(1 * time.Millisecond)
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "test.operation.error")

	// Should not panic
	finish(errors.New("test error"))
}

func TestRecordMetrics(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()

	// These should not panic when provider is disabled
	p.RecordRequest(ctx, attribute.String("test", "value"))
	p.RecordError(ctx, errors.New("test"), attribute.String("test", "value"))
	p.RecordDuration(ctx, 100*time.Millisecond, attribute.String("test", "value"))
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "test.span")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestHTTPMiddleware(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	var hit bool
	h := p.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))

	require.True(t, hit)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestEventOperation(t *testing.T) {
	attrs := EventOperation("evt-123", "FISH", "alvin", "create")
	require.Len(t, attrs, 4)
	require.Equal(t, "oceanlog.event.id", string(attrs[0].Key))
	require.Equal(t, "evt-123", attrs[0].Value.AsString())
	require.Equal(t, "create", attrs[3].Value.AsString())
}

func TestAuxDataOperation(t *testing.T) {
	attrs := AuxDataOperation("evt-123", "vehicleRealtimeNavData", "upsert")
	require.Len(t, attrs, 3)
	require.Equal(t, "oceanlog.auxdata.source", string(attrs[1].Key))
	require.Equal(t, "vehicleRealtimeNavData", attrs[1].Value.AsString())
}

func TestScopedQuery(t *testing.T) {
	attrs := ScopedQuery("cruise-1", "lowering-2", "user-3")
	require.Len(t, attrs, 3)
	require.Equal(t, "oceanlog.cruise.id", string(attrs[0].Key))
	require.Equal(t, "lowering-2", attrs[1].Value.AsString())
}

func TestAddSpanEvent(t *testing.T) {
	// Should not panic
	AddSpanEvent(context.Background(), "test.event", attribute.String("key", "value"))
}
