package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/onelane/internal/bridge"
)

// Recorder writes bridge events to a Journal.
//
// Thread-safety model:
//   - Observe: safe from any goroutine, never blocks on I/O
//   - Run: exactly one goroutine; it is the only writer
//
// Events observed after Close (or after Run returned) are dropped and
// logged.
type Recorder struct {
	journal *Journal
	runID   string
	queue   *eventQueue
	now     func() time.Time
	logger  *slog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger. Defaults to slog.Default().
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorderNow sets the wall clock used for recorded_at.
func WithRecorderNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder appending to runID, which must already
// have been started with StartRun.
func NewRecorder(j *Journal, runID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		journal: j,
		runID:   runID,
		queue:   newEventQueue(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe implements bridge.Observer.
func (r *Recorder) Observe(ev bridge.Event) {
	if !r.queue.Enqueue(pending{event: ev, recordedAt: r.now()}) {
		r.logger.Warn("journal closed, dropping event", "seq", ev.Seq, "kind", ev.Kind)
	}
}

// Pending returns the number of events not yet written.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

// Close stops accepting events. Run writes what is already queued and
// returns.
func (r *Recorder) Close() {
	r.queue.Close()
}

// Run writes queued events until ctx is cancelled or Close is called.
// Events still queued at that point are flushed before returning. A
// failed insert is logged and the event dropped; the journal never
// blocks the bridge.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Debug("journal recorder starting", "run", r.runID)
	// Inserts are short; cancellation only ends the loop.
	wctx := context.WithoutCancel(ctx)
	for {
		r.drain(wctx)

		select {
		case <-ctx.Done():
			r.queue.Close()
			r.drain(wctx)
			r.logger.Debug("journal recorder stopped", "run", r.runID)
			return nil
		case _, ok := <-r.queue.Wait():
			if !ok {
				r.drain(wctx)
				r.logger.Debug("journal recorder closed", "run", r.runID)
				return nil
			}
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		p, ok := r.queue.TryDequeue()
		if !ok {
			return
		}
		if err := r.journal.Append(ctx, r.runID, p.event, p.recordedAt); err != nil {
			r.logger.Error("journal append failed", "seq", p.event.Seq, "kind", p.event.Kind, "error", err)
		}
	}
}
