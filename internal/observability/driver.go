package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gkeb/node4j/internal/contextkeys"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

// Span names created by TracedDriver.
const (
	SpanStatementRun = "node4j.statement.run"
	SpanTxBegin      = "node4j.tx.begin"
	SpanTxCommit     = "node4j.tx.commit"
	SpanTxRollback   = "node4j.tx.rollback"
)

// Attribute keys set on driver spans and metrics.
const (
	AttrDBSystem    = attribute.Key("db.system")
	AttrDBName      = attribute.Key("db.name")
	AttrDBStatement = attribute.Key("db.statement")
	AttrOperation   = attribute.Key("node4j.operation")
	AttrMode        = attribute.Key("node4j.mode")
	AttrRecords     = attribute.Key("node4j.records")
	AttrParams      = attribute.Key("node4j.params")
	AttrErrorCode   = attribute.Key("node4j.error.code")
	AttrOutcome     = attribute.Key("outcome")
)

const (
	modeAutoCommit  = "autocommit"
	modeTransaction = "transaction"
)

// TracedDriver wraps a session.Driver with OpenTelemetry tracing and
// metrics. Statement text is recorded; parameter values never are, only
// their count.
//
// Thread-safety: Safe for concurrent access (delegates to inner driver).
type TracedDriver struct {
	inner  session.Driver
	tracer trace.Tracer
	inst   *instruments
}

// DriverOption is a functional option for configuring TracedDriver.
type DriverOption func(*driverOptions)

type driverOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) DriverOption {
	return func(o *driverOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) DriverOption {
	return func(o *driverOptions) {
		o.meterProvider = mp
	}
}

// NewTracedDriver wraps inner.
func NewTracedDriver(inner session.Driver, opts ...DriverOption) (*TracedDriver, error) {
	o := driverOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	inst, err := newInstruments(o.meterProvider)
	if err != nil {
		return nil, err
	}
	return &TracedDriver{
		inner:  inner,
		tracer: o.tracerProvider.Tracer(InstrumentationName),
		inst:   inst,
	}, nil
}

var _ session.Driver = (*TracedDriver)(nil)

// NewSession opens a traced session on the inner driver.
func (d *TracedDriver) NewSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	s, err := d.inner.NewSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &tracedSession{driver: d, inner: s, database: cfg.Database}, nil
}

// run executes one statement inside a span and records its metrics.
func (d *TracedDriver) run(ctx context.Context, database, mode, text string, params map[string]any,
	exec func(ctx context.Context) (*session.Result, error)) (*session.Result, error) {
	op := contextkeys.GetOperation(ctx)
	ctx, span := d.tracer.Start(ctx, SpanStatementRun, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		AttrDBSystem.String("neo4j"),
		AttrDBName.String(database),
		AttrDBStatement.String(text),
		AttrOperation.String(op),
		AttrMode.String(mode),
		AttrParams.Int(len(params)),
	)

	start := time.Now()
	res, err := exec(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	outcome := "ok"
	if err != nil {
		outcome = "error"
		recordError(span, err)
	} else {
		if res != nil {
			span.SetAttributes(AttrRecords.Int(len(res.Records)))
		}
		span.SetStatus(codes.Ok, "")
	}

	attrs := metric.WithAttributes(AttrOutcome.String(outcome), AttrMode.String(mode), AttrOperation.String(op))
	d.inst.statements.Add(ctx, 1, attrs)
	d.inst.duration.Record(ctx, elapsed, attrs)
	return res, err
}

// step wraps a transaction lifecycle call in a span.
func (d *TracedDriver) step(ctx context.Context, name, database string, fn func(ctx context.Context) error) error {
	ctx, span := d.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		AttrDBSystem.String("neo4j"),
		AttrDBName.String(database),
		AttrOperation.String(contextkeys.GetOperation(ctx)),
	)
	if err := fn(ctx); err != nil {
		recordError(span, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var te *types.Error
	if errors.As(err, &te) {
		span.SetAttributes(AttrErrorCode.String(string(te.Code)))
	}
}

type tracedSession struct {
	driver   *TracedDriver
	inner    session.Session
	database string
}

func (s *tracedSession) Run(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
	return s.driver.run(ctx, s.database, modeAutoCommit, text, params, func(ctx context.Context) (*session.Result, error) {
		return s.inner.Run(ctx, text, params)
	})
}

func (s *tracedSession) BeginTransaction(ctx context.Context) (session.Transaction, error) {
	var tx session.Transaction
	err := s.driver.step(ctx, SpanTxBegin, s.database, func(ctx context.Context) error {
		var err error
		tx, err = s.inner.BeginTransaction(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tracedTx{session: s, inner: tx}, nil
}

func (s *tracedSession) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

type tracedTx struct {
	session *tracedSession
	inner   session.Transaction
}

func (t *tracedTx) Run(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
	d := t.session.driver
	return d.run(ctx, t.session.database, modeTransaction, text, params, func(ctx context.Context) (*session.Result, error) {
		return t.inner.Run(ctx, text, params)
	})
}

func (t *tracedTx) Commit(ctx context.Context) error {
	return t.session.driver.step(ctx, SpanTxCommit, t.session.database, t.inner.Commit)
}

func (t *tracedTx) Rollback(ctx context.Context) error {
	d := t.session.driver
	d.inst.rollbacks.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(contextkeys.GetOperation(ctx))))
	return d.step(ctx, SpanTxRollback, t.session.database, t.inner.Rollback)
}
