// Package observability provides logging, tracing and metrics for node4j.
//
// NewLogger builds the slog.Logger handed to the coordinator, manager and
// relation service. Records carry trace_id and span_id when the context
// holds a span, and statement parameters and credentials are redacted at
// info level and above.
//
// TracedDriver decorates a session.Driver with OpenTelemetry spans and
// metrics. Every statement, begin, commit and rollback becomes a span:
//
//	node4j.statement.run   one statement, auto-commit or in a transaction
//	node4j.tx.begin        explicit transaction start
//	node4j.tx.commit       commit
//	node4j.tx.rollback     rollback
//
// and feeds the instruments
//
//	node4j.statements          counter, by outcome and mode
//	node4j.statement.duration  histogram in milliseconds
//	node4j.tx.rollbacks        counter
//
// InitTracing and InitMetrics build providers from configuration. Both
// return no-op providers when disabled so callers can wire them
// unconditionally:
//
//	tp, err := observability.InitTracing(ctx, cfg.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer observability.ShutdownTracing(ctx, tp)
//
//	driver := observability.NewTracedDriver(client,
//	    observability.WithTracerProvider(tp),
//	    observability.WithMeterProvider(mp))
package observability
