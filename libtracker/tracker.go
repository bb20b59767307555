package libtracker

import (
	"context"
	"log/slog"
	"time"
)

// ActivityTracker observes one service operation. Start returns three
// callbacks: reportErr records a failure, reportChange records the mutated
// entity, and end closes the span. All three are safe to call in any order;
// end is expected to be deferred.
type ActivityTracker interface {
	Start(ctx context.Context, operation string, subject string, kvArgs ...any) (reportErr func(error), reportChange func(id string, data any), end func())
}

// NoopTracker discards all activity. Used in tests and as a default.
type NoopTracker struct{}

func (NoopTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(string, any), func()) {
	return func(error) {}, func(string, any) {}, func() {}
}

// LogActivityTracker writes operation spans to a structured logger.
type LogActivityTracker struct {
	logger *slog.Logger
}

// NewLogActivityTracker returns a tracker that logs spans via slog.
func NewLogActivityTracker(logger *slog.Logger) *LogActivityTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogActivityTracker{logger: logger}
}

func (t *LogActivityTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(string, any), func()) {
	start := time.Now().UTC()
	attrs := []any{
		slog.String("operation", operation),
		slog.String("subject", subject),
	}
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}
	for i := 0; i+1 < len(kvArgs); i += 2 {
		key, okKey := kvArgs[i].(string)
		val, okVal := kvArgs[i+1].(string)
		if okKey && okVal {
			attrs = append(attrs, slog.String(key, val))
		}
	}

	var opErr error
	var entityID string

	reportErr := func(err error) {
		opErr = err
	}
	reportChange := func(id string, data any) {
		entityID = id
	}
	end := func() {
		elapsed := time.Since(start)
		final := append(attrs, slog.Duration("duration", elapsed))
		if entityID != "" {
			final = append(final, slog.String("entity_id", entityID))
		}
		if opErr != nil {
			final = append(final, slog.String("error", opErr.Error()))
			t.logger.Error("activity", final...)
			return
		}
		t.logger.Info("activity", final...)
	}

	return reportErr, reportChange, end
}

// ChainedTracker fans out to every tracker in the slice, in order.
type ChainedTracker []ActivityTracker

func (c ChainedTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(string, any), func()) {
	reportErrs := make([]func(error), 0, len(c))
	reportChanges := make([]func(string, any), 0, len(c))
	ends := make([]func(), 0, len(c))
	for _, tracker := range c {
		reportErr, reportChange, end := tracker.Start(ctx, operation, subject, kvArgs...)
		reportErrs = append(reportErrs, reportErr)
		reportChanges = append(reportChanges, reportChange)
		ends = append(ends, end)
	}
	return func(err error) {
			for _, f := range reportErrs {
				f(err)
			}
		}, func(id string, data any) {
			for _, f := range reportChanges {
				f(id, data)
			}
		}, func() {
			for _, f := range ends {
				f()
			}
		}
}
