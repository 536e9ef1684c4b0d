// Package journal keeps an append-only SQLite audit log of bridge events.
//
// Every server start opens a run (a UUIDv7 id) and each bridge Event is
// stored under (run_id, seq). Ordering always uses seq, never wall time;
// recorded_at is informational. The journal is a diagnostic record only:
// nothing reads it back into a Bridge.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads (onelane trace) during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: events must reference a run
//
// A Recorder adapts the journal to bridge.Observer: Observe only enqueues,
// and a single writer goroutine (Recorder.Run) performs the inserts.
package journal
