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

// Metrics exposes application-level instruments.
type Metrics struct {
	creditTransactions metric.Int64Counter
	leadCharges        metric.Int64Counter
	invoices           metric.Int64Counter
	recommendations    metric.Int64Counter
	lockConflicts      metric.Int64Counter
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
		name = "leadgate"
	}
	meter := provider.Meter(name)

	creditTransactions, err := meter.Int64Counter("leadgate_credit_transactions_total")
	if err != nil {
		return nil, err
	}
	leadCharges, err := meter.Int64Counter("leadgate_lead_charges_total")
	if err != nil {
		return nil, err
	}
	invoices, err := meter.Int64Counter("leadgate_invoices_reconciled_total")
	if err != nil {
		return nil, err
	}
	recommendations, err := meter.Int64Counter("leadgate_recommendations_total")
	if err != nil {
		return nil, err
	}
	lockConflicts, err := meter.Int64Counter("leadgate_lead_lock_conflicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		creditTransactions: creditTransactions,
		leadCharges:        leadCharges,
		invoices:           invoices,
		recommendations:    recommendations,
		lockConflicts:      lockConflicts,
	}, nil
}

// RecordCreditTransaction counts appended ledger rows by type.
func (m *Metrics) RecordCreditTransaction(ctx context.Context, txType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tx_type", strings.TrimSpace(txType)))
	m.creditTransactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLeadCharge counts charge attempts by outcome.
func (m *Metrics) RecordLeadCharge(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.leadCharges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordInvoice(ctx context.Context, invoiceType string, created bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("invoice_type", strings.TrimSpace(invoiceType)),
		attribute.Bool("created", created),
	)
	m.invoices.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRecommendation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.recommendations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLockConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockConflicts.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
	"tx_type":      {},
	"outcome":      {},
	"invoice_type": {},
	"created":      {},
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
