package infrastructure

import (
	"context"
	"fmt"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry owns the OpenTelemetry meter provider backed by the Prometheus
// exporter. Instruments registered on Meter surface on the default
// Prometheus registry scraped at /metrics.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
}

// NewTelemetry builds the meter provider with a Prometheus reader.
func NewTelemetry() (*Telemetry, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Telemetry{provider: provider}, nil
}

// Meter returns a named meter for instrument registration.
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.provider.Meter(name)
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
