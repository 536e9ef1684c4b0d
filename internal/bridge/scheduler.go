package bridge

import (
	"context"
	"log/slog"
)

// Invitation tells one queued actor that the lane is reserved for it.
type Invitation struct {
	Actor     ActorID
	Direction Direction
	Seq       int64
}

// Inviter delivers an invitation to one actor, typically by writing a
// frame to its connection.
type Inviter interface {
	Invite(Invitation) error
}

// Directory resolves an actor to its live connection.
// Lookup is called with the bridge lock held and must not call back into
// the Bridge.
type Directory interface {
	Lookup(ActorID) (Inviter, bool)
}

// Scheduler hands the lane to the next waiting actor whenever it drains.
//
// Run must be called from exactly one goroutine. Dispatch may also be
// called directly (tests, the scenario harness) as long as Run is not
// running concurrently.
type Scheduler struct {
	bridge    *Bridge
	directory Directory
	logger    *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler for b that reaches actors through d.
func NewScheduler(b *Bridge, d Directory, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		bridge:    b,
		directory: d,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled, dispatching once per wake signal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-s.bridge.Wake():
			s.Dispatch()
		}
	}
}

// Dispatch reserves the lane for the next candidate and invites it.
// It returns the invitation that was delivered, if any.
//
// A failed delivery drops the candidate's reservation and the policy runs
// again, so a dead connection never leaves the lane reserved. If the
// candidate claimed the slot on another connection meanwhile, its entry
// stands.
func (s *Scheduler) Dispatch() (Invitation, bool) {
	for {
		inv, target, ok := s.bridge.reserveNext(s.directory)
		if !ok {
			return Invitation{}, false
		}
		if err := target.Invite(inv); err != nil {
			s.logger.Warn("invitation failed",
				"actor", inv.Actor,
				"direction", inv.Direction,
				"error", err,
			)
			s.bridge.DropReservation(inv.Actor)
			continue
		}
		s.logger.Info("actor invited",
			"actor", inv.Actor,
			"direction", inv.Direction,
			"seq", inv.Seq,
		)
		return inv, true
	}
}
