package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitMeterProvider_ServesDomainCounters(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	handler, shutdown, err := InitMeterProvider("bookstore-test", "0.0.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	instruments, err := NewInstruments()
	require.NoError(t, err)
	instruments.Checkout(context.Background(), "placed")
	instruments.BookViewed(context.Background())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bookstore_checkout_attempts_total")
	assert.Contains(t, string(body), `outcome="placed"`)
	assert.Contains(t, string(body), "bookstore_book_views_total")
}
