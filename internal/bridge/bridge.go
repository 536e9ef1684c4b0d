package bridge

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/eapache/queue"
)

// Bridge is the admission controller for the shared lane.
//
// Thread-safety model:
//   - RequestEntry, Release, Purge, Status: safe from any goroutine
//   - all mutations are serialized by mu; there is no other parallelism
//   - observers are notified outside mu, in Seq order (emitMu)
//
// INVARIANTS:
//   - len(occupants) > 0 implies every occupant entered in direction
//   - an actor is in at most one wait queue, and never while an occupant
//   - expected != "" implies len(occupants) == 0
type Bridge struct {
	mu        sync.Mutex
	occupants map[ActorID]struct{}
	direction Direction
	waiting   map[Direction]*queue.Queue // FIFO of ActorID per direction
	queuedIn  map[ActorID]Direction      // index over waiting
	expected  ActorID                    // reservation left by the last invitation
	clock     *Clock
	wake      chan struct{} // size 1, coalesces signals

	emitMu    sync.Mutex
	observers []Observer

	logger *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock sets the logical clock used to stamp events.
func WithClock(c *Clock) Option {
	return func(b *Bridge) {
		b.clock = c
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty bridge with no committed direction.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		occupants: make(map[ActorID]struct{}),
		direction: None,
		waiting: map[Direction]*queue.Queue{
			Left:  queue.New(),
			Right: queue.New(),
		},
		queuedIn: make(map[ActorID]Direction),
		clock:    NewClock(),
		wake:     make(chan struct{}, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddObserver registers an observer for all subsequent events.
func (b *Bridge) AddObserver(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Wake returns the channel signaled when occupancy drops to zero or a
// reservation is dropped. The Scheduler is its only intended reader.
func (b *Bridge) Wake() <-chan struct{} {
	return b.wake
}

// RequestEntry asks for actor to enter the lane travelling in dir.
//
// The actor is granted when the lane is empty and no reservation names
// another actor, or when the lane flows in dir and nobody waits on the
// opposite side. Otherwise it is queued (at most once).
// Re-requests from an occupant return AlreadyCrossing without side effects.
func (b *Bridge) RequestEntry(actor ActorID, dir Direction) (Outcome, error) {
	if actor == "" {
		return 0, ErrInvalidActor
	}
	if !dir.Valid() {
		return 0, ErrInvalidDirection
	}

	b.mu.Lock()
	if _, ok := b.occupants[actor]; ok {
		b.mu.Unlock()
		return AlreadyCrossing, nil
	}

	if b.mayCrossLocked(actor, dir) {
		b.dequeueLocked(actor)
		b.occupants[actor] = struct{}{}
		b.direction = dir
		if b.expected == actor {
			b.expected = ""
		}
		ev := b.eventLocked(EventGranted, actor, dir)
		b.logger.Debug("entry granted", "actor", actor, "direction", dir, "occupancy", len(b.occupants))
		b.unlockAndEmit(ev)
		return Granted, nil
	}

	if current, ok := b.queuedIn[actor]; ok && current == dir {
		b.mu.Unlock()
		return Queued, nil
	}
	b.dequeueLocked(actor)
	b.waiting[dir].Add(actor)
	b.queuedIn[actor] = dir
	ev := b.eventLocked(EventQueued, actor, dir)
	b.logger.Debug("entry queued", "actor", actor, "direction", dir, "position", b.waiting[dir].Length())
	b.unlockAndEmit(ev)
	return Queued, nil
}

// mayCrossLocked is the admission decision. Caller holds mu.
func (b *Bridge) mayCrossLocked(actor ActorID, dir Direction) bool {
	if len(b.occupants) == 0 {
		return b.expected == "" || b.expected == actor
	}
	return dir == b.direction && b.waiting[dir.Opposite()].Length() == 0
}

// Release records that actor left the lane. It returns ErrNotOccupant if
// actor was never granted entry.
func (b *Bridge) Release(actor ActorID) error {
	b.mu.Lock()
	if _, ok := b.occupants[actor]; !ok {
		b.mu.Unlock()
		return ErrNotOccupant
	}
	delete(b.occupants, actor)
	if len(b.occupants) == 0 {
		b.signalLocked()
	}
	ev := b.eventLocked(EventReleased, actor, b.direction)
	b.logger.Debug("actor released", "actor", actor, "occupancy", len(b.occupants))
	b.unlockAndEmit(ev)
	return nil
}

// Purge removes every trace of actor: its queue entry, its place on the
// lane and any reservation naming it. It is idempotent and reports whether
// anything changed.
func (b *Bridge) Purge(actor ActorID) bool {
	return b.PurgeIf(actor, nil)
}

// PurgeIf is Purge guarded by cond, which runs under the bridge lock. The
// connection handler uses it to drop its registry entry and the actor's
// state in one step, so a reconnecting actor is never purged by the
// connection it replaced. cond must not call back into the Bridge.
func (b *Bridge) PurgeIf(actor ActorID, cond func() bool) bool {
	b.mu.Lock()
	if cond != nil && !cond() {
		b.mu.Unlock()
		return false
	}

	changed := false
	dir := None

	if d, ok := b.queuedIn[actor]; ok {
		b.dequeueLocked(actor)
		dir = d
		changed = true
	}
	if _, ok := b.occupants[actor]; ok {
		delete(b.occupants, actor)
		dir = b.direction
		changed = true
		if len(b.occupants) == 0 {
			b.signalLocked()
		}
	}
	if b.expected == actor {
		b.expected = ""
		changed = true
		b.signalLocked()
	}

	if !changed {
		b.mu.Unlock()
		return false
	}
	ev := b.eventLocked(EventPurged, actor, dir)
	b.logger.Debug("actor purged", "actor", actor, "occupancy", len(b.occupants))
	b.unlockAndEmit(ev)
	return true
}

// DropReservation clears the reservation if it still names actor and
// wakes the Scheduler. Queues and occupants are left alone: an actor that
// already claimed its slot keeps it.
func (b *Bridge) DropReservation(actor ActorID) bool {
	b.mu.Lock()
	if actor == "" || b.expected != actor {
		b.mu.Unlock()
		return false
	}
	b.expected = ""
	b.signalLocked()
	ev := b.eventLocked(EventPurged, actor, None)
	b.logger.Debug("reservation dropped", "actor", actor)
	b.unlockAndEmit(ev)
	return true
}

// Status returns a consistent snapshot of the bridge.
func (b *Bridge) Status() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// reserveNext runs the alternation policy and reserves the lane for the
// chosen actor. It does nothing while the lane is occupied or a
// reservation is outstanding. Candidates without a live connection in dir
// are dropped and the policy re-runs.
//
// The returned Inviter must be used after the lock is released.
func (b *Bridge) reserveNext(directory Directory) (Invitation, Inviter, bool) {
	b.mu.Lock()
	if len(b.occupants) > 0 || b.expected != "" {
		b.mu.Unlock()
		return Invitation{}, nil, false
	}

	var events []Event
	for {
		actor, dir, ok := b.popCandidateLocked()
		if !ok {
			if b.direction != None {
				b.direction = None
				events = append(events, b.eventLocked(EventIdle, "", None))
				b.logger.Debug("bridge idle")
			}
			b.unlockAndEmit(events...)
			return Invitation{}, nil, false
		}

		target, live := directory.Lookup(actor)
		if !live || target == nil {
			events = append(events, b.eventLocked(EventSkipped, actor, dir))
			b.logger.Debug("invitation candidate not connected", "actor", actor, "direction", dir)
			continue
		}

		b.direction = dir
		b.expected = actor
		ev := b.eventLocked(EventInvited, actor, dir)
		events = append(events, ev)
		b.unlockAndEmit(events...)
		return Invitation{Actor: actor, Direction: dir, Seq: ev.Seq}, target, true
	}
}

// popCandidateLocked pops the head of the preferred queue: the opposite
// side first, then the same side; LEFT before RIGHT when no direction is
// committed.
func (b *Bridge) popCandidateLocked() (ActorID, Direction, bool) {
	order := [2]Direction{Left, Right}
	if b.direction.Valid() {
		order = [2]Direction{b.direction.Opposite(), b.direction}
	}
	for _, d := range order {
		q := b.waiting[d]
		if q.Length() == 0 {
			continue
		}
		actor := q.Remove().(ActorID)
		delete(b.queuedIn, actor)
		return actor, d, true
	}
	return "", None, false
}

// dequeueLocked removes actor from whichever queue holds it, preserving
// the order of everybody else.
func (b *Bridge) dequeueLocked(actor ActorID) {
	dir, ok := b.queuedIn[actor]
	if !ok {
		return
	}
	delete(b.queuedIn, actor)
	q := b.waiting[dir]
	for n := q.Length(); n > 0; n-- {
		v := q.Remove()
		if v.(ActorID) != actor {
			q.Add(v)
		}
	}
}

func (b *Bridge) signalLocked() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) snapshotLocked() Snapshot {
	occupants := make([]ActorID, 0, len(b.occupants))
	for a := range b.occupants {
		occupants = append(occupants, a)
	}
	sort.Slice(occupants, func(i, j int) bool { return occupants[i] < occupants[j] })

	return Snapshot{
		Occupancy:    len(b.occupants),
		Direction:    b.direction,
		Occupants:    occupants,
		WaitingLeft:  queueContents(b.waiting[Left]),
		WaitingRight: queueContents(b.waiting[Right]),
		Expected:     b.expected,
	}
}

func (b *Bridge) eventLocked(kind EventKind, actor ActorID, dir Direction) Event {
	return Event{
		Seq:       b.clock.Next(),
		Kind:      kind,
		Actor:     actor,
		Direction: dir,
		Snapshot:  b.snapshotLocked(),
	}
}

// unlockAndEmit releases mu and delivers events to observers. emitMu is
// taken before mu is released so observers see events in Seq order.
func (b *Bridge) unlockAndEmit(events ...Event) {
	if len(events) == 0 || len(b.observers) == 0 {
		b.mu.Unlock()
		return
	}
	observers := b.observers
	b.emitMu.Lock()
	b.mu.Unlock()
	defer b.emitMu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			o.Observe(ev)
		}
	}
}

func queueContents(q *queue.Queue) []ActorID {
	out := make([]ActorID, q.Length())
	for i := range out {
		out[i] = q.Get(i).(ActorID)
	}
	return out
}
