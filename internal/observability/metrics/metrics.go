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

// Metrics exposes billing instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	invoicesCreated   metric.Int64Counter
	invoiceConflicts  metric.Int64Counter
	invoiceNoUsage    metric.Int64Counter
	usageUnpriced     metric.Int64Counter
	usageRecorded     metric.Int64Counter
	lineItemMutations metric.Int64Counter
	shareTokenLookups metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
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

// New registers the billing instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "warebill"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.invoicesCreated, "billing_invoices_created_total"},
		{&m.invoiceConflicts, "billing_invoice_conflicts_total"},
		{&m.invoiceNoUsage, "billing_invoice_no_pending_usage_total"},
		{&m.usageUnpriced, "billing_usage_unpriced_total"},
		{&m.usageRecorded, "billing_usage_recorded_total"},
		{&m.lineItemMutations, "billing_line_item_mutations_total"},
		{&m.shareTokenLookups, "billing_share_token_lookups_total"},
		{&m.rateLimitDenied, "billing_rate_limit_denied_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordInvoiceCreated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("status", status))...))
}

func (m *Metrics) RecordInvoiceConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoiceConflicts.Add(ctx, 1)
}

func (m *Metrics) RecordNoPendingUsage(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoiceNoUsage.Add(ctx, 1)
}

// RecordUnpriced counts usage entries left out of an invoice or summary.
func (m *Metrics) RecordUnpriced(ctx context.Context, kind, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	)
	m.usageUnpriced.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordUsageRecorded(ctx context.Context, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.usageRecorded.Add(ctx, int64(n), metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

func (m *Metrics) RecordLineItemMutation(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.lineItemMutations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("op", op))...))
}

func (m *Metrics) RecordShareTokenLookup(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.shareTokenLookups.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("result", result))...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("endpoint", endpoint))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
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
	"kind":     {},
	"reason":   {},
	"status":   {},
	"op":       {},
	"result":   {},
	"endpoint": {},
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
