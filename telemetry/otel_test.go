package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/agentuity/go-query/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNewExportsSpans(t *testing.T) {
	var requests atomic.Int32
	var path, auth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		path.Store(r.URL.Path)
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	provider, shutdown, err := New(context.Background(), server.URL, "secret", "query-test", logger.NewTestLogger())
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, span := otel.Tracer("test").Start(context.Background(), "query.fetch")
	span.End()
	shutdown()

	assert.GreaterOrEqual(t, requests.Load(), int32(1))
	assert.Equal(t, "/v1/traces", path.Load())
	assert.Equal(t, "Bearer secret", auth.Load())
}

func TestNewWithInvalidURL(t *testing.T) {
	provider, shutdown, err := New(context.Background(), "://invalid-url", "", "query-test", logger.NewTestLogger())
	assert.Error(t, err)
	assert.Nil(t, provider)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "error parsing otlpServerURL")

	_, _, err = New(context.Background(), "ftp://collector", "", "query-test", logger.NewTestLogger())
	assert.ErrorContains(t, err, "unsupported otlp scheme")
}
