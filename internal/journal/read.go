package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/onelane/internal/bridge"
)

// Record is a stored event.
type Record struct {
	RunID      string       `json:"run_id"`
	RecordedAt time.Time    `json:"recorded_at"`
	Event      bridge.Event `json:"event"`
}

// Run is one server run.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Events    int       `json:"events"`
}

// Filter narrows Events. Zero fields match everything.
type Filter struct {
	RunID string
	Actor bridge.ActorID
	Kind  bridge.EventKind
	// Limit keeps only the last Limit matching events.
	Limit int
}

// Events returns matching events ordered by run, then seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (j *Journal) Events(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, string(f.Actor))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := `SELECT run_id, seq, kind, actor, direction, snapshot, recorded_at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// Run ids are UUIDv7 and sort by start time.
	order := " ORDER BY run_id COLLATE BINARY ASC, seq ASC"
	if f.Limit > 0 {
		query = "SELECT * FROM (" + query + " ORDER BY run_id COLLATE BINARY DESC, seq DESC LIMIT ?)" + order
		args = append(args, f.Limit)
	} else {
		query += order
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec                          Record
			kind, actor, dir, snap, when string
		)
		if err := rows.Scan(&rec.RunID, &rec.Event.Seq, &kind, &actor, &dir, &snap, &when); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Event.Kind = bridge.EventKind(kind)
		rec.Event.Actor = bridge.ActorID(actor)
		rec.Event.Direction = bridge.Direction(dir)
		if err := json.Unmarshal([]byte(snap), &rec.Event.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for seq %d: %w", rec.Event.Seq, err)
		}
		if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, when); err != nil {
			return nil, fmt.Errorf("parse recorded_at for seq %d: %w", rec.Event.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// Runs lists server runs, oldest first, with their event counts.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, COUNT(e.seq)
		FROM runs r LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.ID, &started, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at for run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
