package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/onelane/internal/bridge"
)

// StartRun records the start of a server run. Calling it twice with the
// same id is a no-op.
func (j *Journal) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// Append stores one event. Uses ON CONFLICT DO NOTHING so re-appending the
// same (run, seq) is silently ignored.
//
// Note: the run must exist (foreign key constraint).
func (j *Journal) Append(ctx context.Context, runID string, ev bridge.Event, recordedAt time.Time) error {
	snap, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, actor, direction, occupancy, snapshot, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		runID,
		ev.Seq,
		string(ev.Kind),
		string(ev.Actor),
		ev.Direction.String(),
		ev.Snapshot.Occupancy,
		string(snap),
		formatTime(recordedAt),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
