package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing-level instruments.
type Metrics struct {
	billsCreated      metric.Int64Counter
	paymentsApplied   metric.Int64Counter
	paymentConflicts  metric.Int64Counter
	ledgerEntries     metric.Int64Counter
	enrollmentOutcome metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "memberbill"
	}
	meter := provider.Meter(name)

	billsCreated, err := meter.Int64Counter("memberbill_bills_created_total")
	if err != nil {
		return nil, err
	}
	paymentsApplied, err := meter.Int64Counter("memberbill_payments_applied_total")
	if err != nil {
		return nil, err
	}
	paymentConflicts, err := meter.Int64Counter("memberbill_payment_conflicts_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("memberbill_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	enrollmentOutcome, err := meter.Int64Counter("memberbill_enrollment_decisions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billsCreated:      billsCreated,
		paymentsApplied:   paymentsApplied,
		paymentConflicts:  paymentConflicts,
		ledgerEntries:     ledgerEntries,
		enrollmentOutcome: enrollmentOutcome,
	}, nil
}

// RecordBillCreated counts issued bills by origin ("enrollment" or "recurring").
func (m *Metrics) RecordBillCreated(ctx context.Context, origin string) {
	if m == nil {
		return
	}
	m.billsCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("origin", strings.TrimSpace(origin)))...))
}

func (m *Metrics) RecordPaymentApplied(ctx context.Context, method string, attempts int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
		attribute.Bool("retried", attempts > 1),
	)
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPaymentConflict(ctx context.Context, exhausted bool) {
	if m == nil {
		return
	}
	m.paymentConflicts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.Bool("exhausted", exhausted))...))
}

func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))...))
}

func (m *Metrics) RecordEnrollmentDecision(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.enrollmentOutcome.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("action", strings.TrimSpace(action)))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"origin":      {},
	"method":      {},
	"retried":     {},
	"exhausted":   {},
	"source_type": {},
	"action":      {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
