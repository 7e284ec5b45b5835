package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (job_started, orphan_deleted, ...).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step on warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision being logged (classify, admission, ...).
	FieldDecisionType = "decision_type"
	// FieldSourcePath is the source media file a log line refers to.
	FieldSourcePath = "source_path"
	// FieldJobID is the scheduler job identifier.
	FieldJobID = "job_id"
	// FieldOrigin records how a candidate was discovered (event, sweep, manual).
	FieldOrigin = "origin"
)

type jobKey struct{}

type jobFields struct {
	id     string
	source string
}

// WithJob returns a context carrying the job identifier and source path.
func WithJob(ctx context.Context, jobID, sourcePath string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobKey{}, jobFields{id: jobID, source: sourcePath})
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields, ok := ctx.Value(jobKey{}).(jobFields)
	if !ok {
		return nil
	}
	attrs := make([]slog.Attr, 0, 2)
	if fields.id != "" {
		attrs = append(attrs, slog.String(FieldJobID, fields.id))
	}
	if fields.source != "" {
		attrs = append(attrs, slog.String(FieldSourcePath, fields.source))
	}
	return attrs
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
