package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for the licensing service.
// A nil *Metrics disables recording, so the service never branches on
// whether metrics are configured.
type Metrics struct {
	issuedTotal       metric.Int64Counter
	registrationTotal metric.Int64Counter
	activationTotal   metric.Int64Counter
	validationTotal   metric.Int64Counter
	revocationTotal   metric.Int64Counter
	sweptTotal        metric.Int64Counter
	opDuration        metric.Float64Histogram
}

// NewMetrics creates the service instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.issuedTotal, err = meter.Int64Counter("license_issued_total",
		metric.WithDescription("Licenses issued after the registration delay")); err != nil {
		return nil, fmt.Errorf("create issued counter: %w", err)
	}
	if m.registrationTotal, err = meter.Int64Counter("license_registrations_total",
		metric.WithDescription("Node registration requests by outcome")); err != nil {
		return nil, fmt.Errorf("create registration counter: %w", err)
	}
	if m.activationTotal, err = meter.Int64Counter("license_activations_total",
		metric.WithDescription("Device activation attempts by result")); err != nil {
		return nil, fmt.Errorf("create activation counter: %w", err)
	}
	if m.validationTotal, err = meter.Int64Counter("license_validations_total",
		metric.WithDescription("License validations by result")); err != nil {
		return nil, fmt.Errorf("create validation counter: %w", err)
	}
	if m.revocationTotal, err = meter.Int64Counter("license_revocations_total",
		metric.WithDescription("Licenses revoked")); err != nil {
		return nil, fmt.Errorf("create revocation counter: %w", err)
	}
	if m.sweptTotal, err = meter.Int64Counter("license_registrations_swept_total",
		metric.WithDescription("Registrations removed after the grace window expired")); err != nil {
		return nil, fmt.Errorf("create swept counter: %w", err)
	}
	if m.opDuration, err = meter.Float64Histogram("license_operation_duration_seconds",
		metric.WithDescription("Duration of licensing operations"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordIssuance(ctx context.Context) {
	if m == nil {
		return
	}
	m.issuedTotal.Add(ctx, 1)
}

func (m *Metrics) recordRegistration(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.registrationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordActivation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.activationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) recordValidation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.validationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) recordRevocation(ctx context.Context) {
	if m == nil {
		return
	}
	m.revocationTotal.Add(ctx, 1)
}

func (m *Metrics) recordSwept(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.sweptTotal.Add(ctx, int64(count))
}

func (m *Metrics) recordDuration(ctx context.Context, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.opDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)))
}
