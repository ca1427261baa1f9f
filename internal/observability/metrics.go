package observability

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/gkeb/node4j/internal/config"
	"github.com/gkeb/node4j/internal/types"
)

// Metric names recorded by TracedDriver.
const (
	MetricStatements        = "node4j.statements"
	MetricStatementDuration = "node4j.statement.duration"
	MetricTxRollbacks       = "node4j.tx.rollbacks"
)

// InitMetrics builds a meter provider that pushes to cfg.Endpoint over
// OTLP/gRPC every cfg.Interval. A disabled config yields a no-op provider.
func InitMetrics(ctx context.Context, cfg config.MetricsConfig) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		return noop.NewMeterProvider(), nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, types.WrapError(ErrCodeTelemetry, "failed to create otlp metric exporter", err).
			WithContext("endpoint", cfg.Endpoint)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
	), nil
}

// ShutdownMetrics flushes and stops providers that support it.
func ShutdownMetrics(ctx context.Context, provider metric.MeterProvider) error {
	sp, ok := provider.(interface{ Shutdown(context.Context) error })
	if !ok {
		return nil
	}
	if err := sp.Shutdown(ctx); err != nil {
		return types.WrapError(ErrCodeTelemetry, "failed to shutdown meter provider", err)
	}
	return nil
}

// instruments are the driver's metric instruments.
type instruments struct {
	statements metric.Int64Counter
	duration   metric.Float64Histogram
	rollbacks  metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(InstrumentationName)

	statements, err := meter.Int64Counter(MetricStatements,
		metric.WithDescription("Statements sent to the database"),
		metric.WithUnit("{statement}"))
	if err != nil {
		return nil, types.WrapError(ErrCodeTelemetry, "failed to create statements counter", err)
	}
	duration, err := meter.Float64Histogram(MetricStatementDuration,
		metric.WithDescription("Statement round trip time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, types.WrapError(ErrCodeTelemetry, "failed to create duration histogram", err)
	}
	rollbacks, err := meter.Int64Counter(MetricTxRollbacks,
		metric.WithDescription("Rolled back transactions"),
		metric.WithUnit("{transaction}"))
	if err != nil {
		return nil, types.WrapError(ErrCodeTelemetry, "failed to create rollbacks counter", err)
	}
	return &instruments{statements: statements, duration: duration, rollbacks: rollbacks}, nil
}
