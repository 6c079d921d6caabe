package audit

import (
	"context"
	"time"
)

// writeTimeout bounds one history insert.
const writeTimeout = 2 * time.Second

// Logger is the logging interface used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes command results to a Repository. It satisfies
// control.Recorder, so it can be chained with the metrics recorder.
type Recorder struct {
	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. A nil logger discards write failures.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

// CommandAttempt is a no-op; only final results are kept.
func (r *Recorder) CommandAttempt(string) {}

// CommandResult stores one executed command. Failures are logged and
// never reach the caller.
func (r *Recorder) CommandResult(uniqueID, kind, result string, attempts int, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.repo.Create(ctx, &Entry{
		UniqueID:   uniqueID,
		Kind:       kind,
		Result:     result,
		Attempts:   attempts,
		DurationMS: d.Milliseconds(),
		CreatedAt:  r.now().UTC(),
	})
	if err != nil {
		r.logger.Warn("recording command history", "unique_id", uniqueID, "kind", kind, "error", err)
	}
}
