package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PGXTracer implements pgx.QueryTracer, creating one span per statement issued by the history
// store.
type PGXTracer struct{}

// TraceQueryStart starts a span named after the SQL verb.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	sql := strings.TrimSpace(data.SQL)
	op := "query"
	if fields := strings.Fields(sql); len(fields) > 0 {
		op = strings.ToLower(fields[0])
	}
	ctx, _ = otel.Tracer("kasse-pos/pgx").Start(ctx, "pgx."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", truncateSQL(sql)),
			attribute.Int("db.args", len(data.Args)),
		),
	)
	return ctx
}

// TraceQueryEnd ends the span and records any error.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	span.End()
}

func truncateSQL(sql string) string {
	if len(sql) > 300 {
		return sql[:300] + "..."
	}
	return sql
}
