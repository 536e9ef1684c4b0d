// Package bridge implements the admission controller for a one-lane bridge.
//
// The Bridge owns the authoritative lane state: the occupant set, the
// committed direction, one FIFO wait queue per direction, and the
// reservation (expected actor) left behind by the Scheduler's last
// invitation. Every mutation runs under a single mutex.
//
// # Admission Policy
//
// An actor may enter when:
//   - the lane is empty and no reservation names somebody else, or
//   - the lane is occupied in the actor's direction and nobody waits on
//     the opposite side.
//
// Everybody else is queued. Once the opposite queue is non-empty no further
// same-direction actors can pile on, which bounds how long the opposite
// side can be starved.
//
// # Scheduler
//
// The Scheduler sleeps on a wake channel that the Bridge signals whenever
// occupancy drops to zero or a reservation is dropped. On wake it applies
// the alternation policy (opposite side first, then same side, LEFT on a
// cold start), reserves the slot for the chosen actor and pushes an
// invitation to that actor through a Directory. Network I/O happens after
// the bridge lock is released.
//
// # Events
//
// Each state change produces an Event stamped with a logical sequence
// number. Observers (journal, status feed) receive events after the lock
// is released.
package bridge
