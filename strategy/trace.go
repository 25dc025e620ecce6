package strategy

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/result"
)

const tracerName = "github.com/aponysus/nodecall"

// Trace opens one client span per attempt, named after the invocation identity.
type Trace struct {
	tracer trace.Tracer
}

// NewTrace uses tracer, or the global provider's tracer when nil.
func NewTrace(tracer trace.Tracer) *Trace {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Trace{tracer: tracer}
}

func (t *Trace) Capability() Capability { return CapTrace }
func (t *Trace) Priority() int          { return PriorityTrace }

func (t *Trace) Apply(next Invocation) Invocation {
	tracer := t.tracer
	return Invocation{
		ID: next.ID,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			attrs := []attribute.KeyValue{attribute.String("rpc.identity", next.ID)}
			if info, ok := observe.AttemptFromContext(ctx); ok {
				attrs = append(attrs,
					attribute.Int("rpc.attempt", info.Attempt),
					attribute.String("rpc.call_id", info.CallID),
				)
			}
			ctx, span := tracer.Start(ctx, next.ID,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(attrs...),
			)

			h := next.Call(ctx, req)
			h.OnComplete(func(r result.Result[any]) {
				if err := r.Err(); err != nil {
					span.RecordError(err)
					span.SetAttributes(attribute.String("rpc.error_kind", err.Kind.String()))
					span.SetStatus(codes.Error, err.Error())
				} else {
					span.SetStatus(codes.Ok, "")
				}
				span.End()
			})
			return h
		},
	}
}
