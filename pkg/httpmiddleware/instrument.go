package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// routeSpanName names a span after the matched mux pattern, falling back to
// the operation for unmatched requests.
func routeSpanName(operation string, r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return operation
}

// Instrument records a server span and the otelhttp request metrics for every
// request. Spans are named after the matched route pattern and metrics carry
// it as http.route, keeping cardinality bounded.
//
// Anything between Instrument and the mux must pass the request through
// without copying it, otherwise the matched pattern is not visible here.
func Instrument(service string, tp trace.TracerProvider, mp metric.MeterProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
			otelhttp.WithSpanNameFormatter(routeSpanName),
		)
	}
}
