package database

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/database"

type slowQueryPolicy struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryPolicy]

// SetSlowQueryLogging logs statements slower than threshold as warnings.
// A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryPolicy{threshold: threshold, logger: logger})
}

// TraceQuery opens a client span for one repository operation and returns
// the function that closes it:
//
//	ctx, end := database.TraceQuery(ctx, "ReserveStock", query)
//	defer func() { end(err) }()
//
// Spans record whether the statement ran inside a TxManager transaction.
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	_, inTx := TxFromContext(ctx)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
			attribute.Bool("db.in_transaction", inTx),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		policy := slowQueries.Load()
		if policy == nil || elapsed < policy.threshold {
			return
		}
		attrs := []any{
			slog.String("operation", operation),
			slog.String("statement", compactSQL(statement)),
			slog.Duration("duration", elapsed),
			slog.Bool("in_transaction", inTx),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		policy.logger.WarnContext(ctx, "slow query detected", attrs...)
	}
}

// compactSQL folds the indentation of multi-line statements into single
// spaces for log lines.
func compactSQL(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}
