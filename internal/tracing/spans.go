package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRunID        = "run.id"
	AttrRunMode      = "run.mode"
	AttrWorkingSet   = "run.working_set"
	AttrSnapshotSize = "run.snapshot_size"
	AttrModuleKey    = "module.key"
	AttrChain        = "module.chain"
	AttrDeltaCount   = "changeset.size"
	AttrUpdated      = "write.updated"
	AttrFailed       = "write.failed"
)

// Span names.
const (
	SpanRun        = "engine.run"
	SpanSnapshot   = "engine.snapshot"
	SpanTreeType   = "phase.tree_type"
	SpanSemver     = "phase.semver"
	SpanDependents = "phase.dependents"
	SpanExpiration = "phase.expiration"
	SpanMerge      = "engine.merge"
	SpanWrite      = "engine.write"
)

// Event names.
const (
	EventCacheInvalidated = "cache.invalidated"
	EventTrackerFailure   = "tracker.failure"
)

// End finishes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Start is a shorthand for tracer.Start with the package's span options.
func Start(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, append(opts, trace.WithSpanKind(trace.SpanKindInternal))...)
}
