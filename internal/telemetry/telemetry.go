// Package telemetry wires the scheduler's and gate's OpenTelemetry counters
// into the same Prometheus registry the HTTP server already exposes at
// /metrics (internal/httpapi's promhttp.Handler uses the default
// registerer/gatherer, so the exporter here is built against it too).
package telemetry

import (
	"context"

	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewMeterProvider builds a MeterProvider backed by a Prometheus exporter.
// Call otel.SetMeterProvider with the result so internal/scheduler and
// internal/gate's package-level meters (otherwise no-ops) start recording.
func NewMeterProvider() (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprometheus.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// Shutdown flushes and stops the MeterProvider, mirroring the HTTP server's
// graceful-shutdown convention.
func Shutdown(ctx context.Context, mp *sdkmetric.MeterProvider) error {
	if mp == nil {
		return nil
	}
	return mp.Shutdown(ctx)
}
