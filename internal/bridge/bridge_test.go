package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(opts ...Option) *Bridge {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(opts...)
}

// recordingInviter captures invitations delivered to one actor.
type recordingInviter struct {
	mu   sync.Mutex
	got  []Invitation
	fail error
	// before runs ahead of delivery, outside the bridge lock.
	before func(Invitation)
}

func (r *recordingInviter) Invite(inv Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.before != nil {
		r.before(inv)
	}
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, inv)
	return nil
}

func (r *recordingInviter) invitations() []Invitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invitation(nil), r.got...)
}

// fakeDirectory treats every actor with an inviter as connected.
type fakeDirectory struct {
	mu       sync.Mutex
	inviters map[ActorID]*recordingInviter
}

func newFakeDirectory(actors ...ActorID) *fakeDirectory {
	d := &fakeDirectory{inviters: make(map[ActorID]*recordingInviter)}
	for _, a := range actors {
		d.connect(a)
	}
	return d
}

func (d *fakeDirectory) connect(a ActorID) *recordingInviter {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv := &recordingInviter{}
	d.inviters[a] = inv
	return inv
}

func (d *fakeDirectory) disconnect(a ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inviters, a)
}

func (d *fakeDirectory) Lookup(a ActorID) (Inviter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, ok := d.inviters[a]
	if !ok {
		return nil, false
	}
	return inv, true
}

func (d *fakeDirectory) get(a ActorID) *recordingInviter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inviters[a]
}

func mustRequest(t *testing.T, b *Bridge, actor ActorID, dir Direction) Outcome {
	t.Helper()
	out, err := b.RequestEntry(actor, dir)
	require.NoError(t, err)
	return out
}

// checkInvariants fails the test if the bridge state is inconsistent.
func checkInvariants(t *testing.T, b *Bridge) {
	t.Helper()
	s := b.Status()
	assert.Equal(t, s.Occupancy, len(s.Occupants), "occupancy must equal occupant count")
	if s.Occupancy > 0 {
		assert.True(t, s.Direction.Valid(), "occupied bridge must have a direction")
		assert.Empty(t, s.Expected, "reservation only exists while the bridge is empty")
	}
	seen := make(map[ActorID]bool)
	for _, a := range append(append([]ActorID{}, s.WaitingLeft...), s.WaitingRight...) {
		assert.False(t, seen[a], "actor %s queued twice", a)
		seen[a] = true
	}
	for _, a := range s.Occupants {
		assert.False(t, seen[a], "occupant %s must not be queued", a)
	}
}

func TestBridge_New(t *testing.T) {
	b := newTestBridge()
	s := b.Status()

	assert.Equal(t, 0, s.Occupancy)
	assert.Equal(t, None, s.Direction)
	assert.Empty(t, s.Occupants)
	assert.Empty(t, s.WaitingLeft)
	assert.Empty(t, s.WaitingRight)
	assert.Empty(t, s.Expected)
	assert.False(t, s.Occupied())
}

func TestRequestEntry_EmptyBridgeGrants(t *testing.T) {
	b := newTestBridge()

	out := mustRequest(t, b, "A1", Left)

	assert.Equal(t, Granted, out)
	s := b.Status()
	assert.Equal(t, 1, s.Occupancy)
	assert.Equal(t, Left, s.Direction)
	assert.Equal(t, []ActorID{"A1"}, s.Occupants)
}

func TestRequestEntry_SameDirectionShares(t *testing.T) {
	b := newTestBridge()

	assert.Equal(t, Granted, mustRequest(t, b, "A1", Left))
	assert.Equal(t, Granted, mustRequest(t, b, "A2", Left))
	assert.Equal(t, Granted, mustRequest(t, b, "A3", Left))

	s := b.Status()
	assert.Equal(t, 3, s.Occupancy)
	assert.Equal(t, []ActorID{"A1", "A2", "A3"}, s.Occupants)
	checkInvariants(t, b)
}

func TestRequestEntry_OppositeDirectionQueued(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)

	out := mustRequest(t, b, "B1", Right)

	assert.Equal(t, Queued, out)
	s := b.Status()
	assert.Equal(t, 1, s.Occupancy)
	assert.Equal(t, []ActorID{"B1"}, s.WaitingRight)
	assert.Empty(t, s.WaitingLeft)
}

func TestRequestEntry_AntiStarvationCutoff(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)
	mustRequest(t, b, "B1", Right)

	// Opposite queue is non-empty: same-direction actors can no longer pile on.
	out := mustRequest(t, b, "A3", Left)

	assert.Equal(t, Queued, out)
	s := b.Status()
	assert.Equal(t, []ActorID{"A3"}, s.WaitingLeft)
	assert.Equal(t, 1, s.Occupancy)
}

func TestRequestEntry_AlreadyCrossingIsIdempotent(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)
	before := b.Status()

	out := mustRequest(t, b, "A1", Left)
	assert.Equal(t, AlreadyCrossing, out)

	out = mustRequest(t, b, "A1", Right)
	assert.Equal(t, AlreadyCrossing, out)

	assert.Equal(t, before, b.Status())
}

func TestRequestEntry_RequeueIsNoop(t *testing.T) {
	var events []Event
	b := newTestBridge(WithObserver(ObserverFunc(func(ev Event) { events = append(events, ev) })))
	mustRequest(t, b, "A1", Left)
	mustRequest(t, b, "B1", Right)
	mustRequest(t, b, "B2", Right)

	out := mustRequest(t, b, "B1", Right)

	assert.Equal(t, Queued, out)
	assert.Equal(t, []ActorID{"B1", "B2"}, b.Status().WaitingRight)
	assert.Len(t, events, 3, "re-request must not emit an event")
}

func TestRequestEntry_RequeueOtherDirectionMoves(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)
	mustRequest(t, b, "B1", Right)
	mustRequest(t, b, "A2", Left) // queued behind the cutoff

	// A2 changes its mind; it may only be in one queue.
	out := mustRequest(t, b, "A2", Right)

	assert.Equal(t, Queued, out)
	s := b.Status()
	assert.Empty(t, s.WaitingLeft)
	assert.Equal(t, []ActorID{"B1", "A2"}, s.WaitingRight)
	checkInvariants(t, b)
}

func TestRequestEntry_Validation(t *testing.T) {
	b := newTestBridge()

	_, err := b.RequestEntry("", Left)
	assert.ErrorIs(t, err, ErrInvalidActor)

	_, err = b.RequestEntry("A1", None)
	assert.ErrorIs(t, err, ErrInvalidDirection)

	_, err = b.RequestEntry("A1", Direction("up"))
	assert.ErrorIs(t, err, ErrInvalidDirection)

	assert.Equal(t, 0, b.Status().Occupancy)
}

func TestRelease(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)
	mustRequest(t, b, "A2", Left)

	require.NoError(t, b.Release("A1"))

	s := b.Status()
	assert.Equal(t, 1, s.Occupancy)
	assert.Equal(t, []ActorID{"A2"}, s.Occupants)
	assert.Equal(t, Left, s.Direction)

	select {
	case <-b.Wake():
		t.Fatal("wake must only fire when occupancy reaches zero")
	default:
	}

	require.NoError(t, b.Release("A2"))
	select {
	case <-b.Wake():
	default:
		t.Fatal("expected wake signal when occupancy reached zero")
	}
}

func TestRelease_NotOccupant(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)
	mustRequest(t, b, "B1", Right)

	err := b.Release("B1")
	assert.ErrorIs(t, err, ErrNotOccupant)

	err = b.Release("ghost")
	assert.True(t, errors.Is(err, ErrNotOccupant))

	assert.Equal(t, 1, b.Status().Occupancy)
}

func TestPurge_Idempotent(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)
	mustRequest(t, b, "B1", Right)
	mustRequest(t, b, "B2", Right)

	assert.True(t, b.Purge("B1"))
	once := b.Status()
	assert.False(t, b.Purge("B1"))
	twice := b.Status()

	assert.Equal(t, once, twice)
	assert.Equal(t, []ActorID{"B2"}, twice.WaitingRight)
	assert.Equal(t, 1, twice.Occupancy)
}

func TestPurge_Occupant(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)

	assert.True(t, b.Purge("A1"))

	s := b.Status()
	assert.Equal(t, 0, s.Occupancy)
	assert.Empty(t, s.Occupants)
	select {
	case <-b.Wake():
	default:
		t.Fatal("purging the last occupant must wake the scheduler")
	}
	assert.False(t, b.Purge("A1"))
}

func TestPurge_Unknown(t *testing.T) {
	b := newTestBridge()
	assert.False(t, b.Purge("nobody"))
}

func TestPurgeIf_ConditionGuards(t *testing.T) {
	b := newTestBridge()
	mustRequest(t, b, "A1", Left)

	assert.False(t, b.PurgeIf("A1", func() bool { return false }))
	assert.Equal(t, 1, b.Status().Occupancy)

	called := false
	assert.True(t, b.PurgeIf("A1", func() bool { called = true; return true }))
	assert.True(t, called)
	assert.Equal(t, 0, b.Status().Occupancy)
}

func TestEvents_SeqOrdered(t *testing.T) {
	var mu sync.Mutex
	var seqs []int64
	b := newTestBridge(WithObserver(ObserverFunc(func(ev Event) {
		mu.Lock()
		seqs = append(seqs, ev.Seq)
		mu.Unlock()
	})))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := ActorID(fmt.Sprintf("car-%d", i))
			dir := Left
			if i%2 == 1 {
				dir = Right
			}
			for j := 0; j < 20; j++ {
				_, _ = b.RequestEntry(actor, dir)
				_ = b.Release(actor)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seqs)
	for i := 1; i < len(seqs); i++ {
		assert.Less(t, seqs[i-1], seqs[i], "events must be delivered in seq order")
	}
}

func TestBridge_RandomizedMutualExclusion(t *testing.T) {
	b := newTestBridge()
	rng := rand.New(rand.NewPCG(7, 11))
	actors := []ActorID{"a", "b", "c", "d", "e", "f"}
	dirs := map[ActorID]Direction{}

	for step := 0; step < 2000; step++ {
		a := actors[rng.IntN(len(actors))]
		switch rng.IntN(3) {
		case 0:
			d := Left
			if rng.IntN(2) == 0 {
				d = Right
			}
			out, err := b.RequestEntry(a, d)
			require.NoError(t, err)
			if out == Granted {
				dirs[a] = d
			}
		case 1:
			_ = b.Release(a)
		case 2:
			b.Purge(a)
		}

		s := b.Status()
		for _, occ := range s.Occupants {
			require.Equal(t, s.Direction, dirs[occ], "step %d: occupant %s travels against the lane", step, occ)
		}
		checkInvariants(t, b)
	}
}
