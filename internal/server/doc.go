// Package server accepts vehicle connections and routes their frames to
// the bridge.
//
// Each accepted connection gets one goroutine that reads frames, applies
// them to the Bridge and writes exactly one reply per frame. The
// Scheduler runs alongside the accept loop and pushes invitations through
// the Registry, so replies and pushes share one socket; writes are
// serialized per connection.
//
// A connection binds to the first valid actor id it sends. When it ends
// (read error, idle timeout, shutdown, or clean close) the actor is
// unregistered and purged from the bridge, unless a newer connection has
// taken the id over in the meantime.
package server
