package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/engine-gc/internal/gc"
)

// CycleObserver records one span per collection cycle. Phase changes become
// span events; the cycle counters become attributes when the cycle ends.
type CycleObserver struct {
	ctx    context.Context
	tracer trace.Tracer
	name   string
	span   trace.Span
}

// NewCycleObserver creates an observer whose spans are children of ctx. A nil
// tracer uses the global one.
func NewCycleObserver(ctx context.Context, tracer trace.Tracer, collector string) *CycleObserver {
	if tracer == nil {
		tracer = Tracer()
	}
	return &CycleObserver{ctx: ctx, tracer: tracer, name: collector}
}

// OnStateChange implements gc.Observer.
func (o *CycleObserver) OnStateChange(from, to gc.State) {
	if from == gc.StatePause && to == gc.StatePropagate {
		_, o.span = o.tracer.Start(o.ctx, "gc.cycle",
			trace.WithAttributes(attribute.String("gc.collector", o.name)))
		return
	}
	if o.span == nil {
		return
	}
	o.span.AddEvent("gc.phase", trace.WithAttributes(
		attribute.String("gc.phase.from", from.String()),
		attribute.String("gc.phase.to", to.String()),
	))
	if to == gc.StatePause && from != gc.StateFinalize {
		o.span.SetStatus(codes.Error, "cycle abandoned")
		o.span.End()
		o.span = nil
	}
}

// OnCycleDone implements gc.Observer.
func (o *CycleObserver) OnCycleDone(cs gc.CycleStats) {
	if o.span == nil {
		return
	}
	o.span.SetAttributes(
		attribute.Int64("gc.cycle", int64(cs.Cycle)),
		attribute.Int64("gc.marked", int64(cs.Marked)),
		attribute.Int64("gc.condemned", int64(cs.Condemned)),
		attribute.Int64("gc.finalized", int64(cs.Finalized)),
		attribute.Int64("gc.freed", int64(cs.Freed)),
		attribute.Int64("gc.bytes.start", int64(cs.StartBytes)),
		attribute.Int64("gc.bytes.end", int64(cs.EndBytes)),
		attribute.Int64("gc.threshold.next", int64(cs.NextThreshold)),
	)
	o.span.End()
	o.span = nil
}
