package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaflow/ideaflow/pkg/config"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(&config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_NoopWithoutInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
}

func TestRecorders_SafeWithoutProvider(t *testing.T) {
	ctx := context.Background()
	RecordConfirmation(ctx, "mutation.toggle_support", true)
	RecordConfirmation(ctx, "mutation.toggle_support", false)
	RecordMerge(ctx, "feed", 3)
	RecordMerge(ctx, "feed", 0)
}

func TestMetricsServer_ServesMetrics(t *testing.T) {
	srv := metricsServer(9999)
	assert.Equal(t, ":9999", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
