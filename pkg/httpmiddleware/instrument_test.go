package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrument_NamesSpanByRoute(t *testing.T) {
	for _, tt := range []struct {
		name   string
		path   string
		status int
		span   string
	}{
		{name: "Matched", path: "/api/cart/shop-1", status: http.StatusOK, span: "GET /api/cart/{shop_id}"},
		{name: "Unmatched", path: "/nope", status: http.StatusNotFound, span: "shopcart"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/cart/{shop_id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			h := Wrap(mux, RequestID(), Instrument("shopcart", tp, metricnoop.NewMeterProvider()), LogRequests())

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.status, w.Code)

			spans := rec.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.span, spans[0].Name())
		})
	}
}
