package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/protocol"
)

var (
	// ErrRejected is returned when the server refuses a request as invalid.
	// It is never retried.
	ErrRejected = errors.New("request rejected by server")

	// ErrUnresponsive marks a connection on which the server stopped
	// answering.
	ErrUnresponsive = errors.New("server not responding")

	// ErrRetriesExhausted is returned once reconnect attempts run out.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// DialFunc opens a connection to the server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Coordinator drives one vehicle through repeated crossings.
//
// Thread-safety: Run must be called once, from one goroutine. The
// accessors (State, Direction, Crossings, LastMessage) are safe to call
// concurrently with Run.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger
	dial   DialFunc
	rng    *rand.Rand
	now    func() time.Time

	mu        sync.Mutex
	state     State
	direction bridge.Direction
	crossings int
	last      protocol.Response
	received  int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithSeed makes crossing and delay durations reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Coordinator) {
		c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New validates cfg and creates a coordinator in the idle state.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vehicle config: %w", err)
	}

	c := &Coordinator{
		cfg:       cfg,
		logger:    slog.Default(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:       time.Now,
		state:     StateIdle,
		direction: cfg.Direction,
	}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	c.dial = dialer.DialContext
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("actor", cfg.ID)
	return c, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Direction returns the direction of the next (or current) crossing.
func (c *Coordinator) Direction() bridge.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction
}

// Crossings returns the number of completed crossings.
func (c *Coordinator) Crossings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crossings
}

// LastMessage returns the most recent frame received from the server.
func (c *Coordinator) LastMessage() protocol.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Run connects and cycles through crossings until the configured number
// of crossings is reached (nil), ctx is cancelled (ctx.Err()), the server
// rejects a request (ErrRejected), or reconnect attempts run out
// (ErrRetriesExhausted).
func (c *Coordinator) Run(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.InitialBackoff
	eb.MaxInterval = c.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.MaxRetries)), ctx)

	attempts := 0
	for {
		heard := c.receivedCount()
		err := c.session(ctx)
		if err == nil {
			c.logger.Info("vehicle finished", "crossings", c.Crossings())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			c.logger.Error("vehicle stopped", "error", perm.Err)
			return perm.Err
		}

		// Backoff restarts after any session in which the server answered.
		if c.receivedCount() > heard {
			policy.Reset()
			attempts = 0
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}
		attempts++
		c.logger.Warn("connection lost, reconnecting",
			"error", err,
			"attempt", attempts,
			"wait", wait,
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type inbound struct {
	resp protocol.Response
	err  error
}

// session runs the crossing cycle over one connection. It returns nil
// once the configured number of crossings is complete.
func (c *Coordinator) session(ctx context.Context) error {
	nc, err := c.dial(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	defer nc.Close()
	stop := context.AfterFunc(ctx, func() { _ = nc.Close() })
	defer stop()

	c.logger.Info("connected", "addr", c.cfg.Addr, "direction", c.Direction())

	done := make(chan struct{})
	defer close(done)
	inbox := make(chan inbound)
	go c.readLoop(nc, inbox, done)

	enc := protocol.NewEncoder(nc)
	c.setState(StateIdle)

	for c.cfg.Crossings == 0 || c.Crossings() < c.cfg.Crossings {
		if err := c.request(enc); err != nil {
			return err
		}
		c.setState(StateAwaitingGrant)
		if err := c.awaitGrant(ctx, enc, inbox); err != nil {
			return err
		}

		c.setState(StateCrossing)
		hold := c.between(c.cfg.MinCrossing, c.cfg.MaxCrossing)
		c.logger.Info("crossing", "direction", c.Direction(), "duration", hold)
		if err := sleep(ctx, hold); err != nil {
			return err
		}
		if err := c.send(enc, protocol.KindCrossingComplete); err != nil {
			return err
		}
		if err := c.awaitRelease(ctx, inbox); err != nil {
			return err
		}

		c.mu.Lock()
		c.crossings++
		c.direction = c.direction.Opposite()
		c.state = StateIdle
		c.mu.Unlock()

		if c.cfg.Crossings > 0 && c.Crossings() >= c.cfg.Crossings {
			break
		}
		pause := c.between(c.cfg.MinDelay, c.cfg.MaxDelay)
		c.logger.Info("crossed, resting", "next_direction", c.Direction(), "duration", pause)
		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// awaitGrant waits in AWAITING_GRANT until the actor is on the lane.
func (c *Coordinator) awaitGrant(ctx context.Context, enc *protocol.Encoder, inbox <-chan inbound) error {
	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()
	var retry <-chan time.Time
	silent := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case in := <-inbox:
			if in.err != nil {
				return in.err
			}
			silent = 0
			timer.Reset(c.cfg.ResponseTimeout)
			resp := in.resp
			c.setLast(resp)

			switch {
			case resp.IsInvitation():
				c.adopt(resp.ExpectedDirection)
				c.logger.Info("invited", "direction", resp.ExpectedDirection)
				retry = nil
				if err := c.request(enc); err != nil {
					return err
				}
			case resp.Status == protocol.KindPermissionGranted &&
				(resp.Reason == protocol.ReasonDirectGrant || resp.Reason == protocol.ReasonAlreadyCrossing):
				c.adopt(resp.CurrentDirection)
				c.logger.Debug("granted", "reason", resp.Reason, "direction", resp.CurrentDirection)
				return nil
			case resp.Status == protocol.KindPermissionDenied && resp.Reason == protocol.ReasonQueued:
				c.logger.Debug("queued", "lane_direction", resp.CurrentDirection)
				if retry == nil {
					retry = time.After(c.cfg.RetryDelay)
				}
			case resp.Reason == protocol.ReasonInvalidRequest:
				return backoff.Permanent(fmt.Errorf("%w: %s", ErrRejected, resp.Message))
			default:
				c.logger.Debug("ignoring message", "status", resp.Status, "reason", resp.Reason)
			}

		case <-retry:
			retry = nil
			if err := c.request(enc); err != nil {
				return err
			}

		case <-timer.C:
			silent++
			if silent >= c.cfg.MaxSilentTimeouts {
				return fmt.Errorf("%w: %d consecutive timeouts", ErrUnresponsive, silent)
			}
			c.logger.Warn("no response, re-requesting", "timeouts", silent)
			if err := c.request(enc); err != nil {
				return err
			}
			timer.Reset(c.cfg.ResponseTimeout)
		}
	}
}

// awaitRelease waits for the acknowledgement of CROSSING_COMPLETE.
func (c *Coordinator) awaitRelease(ctx context.Context, inbox <-chan inbound) error {
	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-inbox:
			if in.err != nil {
				return in.err
			}
			resp := in.resp
			c.setLast(resp)
			switch {
			case resp.Reason == protocol.ReasonReleased:
				return nil
			case resp.Reason == protocol.ReasonNotOnBridge:
				// The server dropped our slot, e.g. after a reconnect.
				c.logger.Warn("server did not have us on the bridge", "message", resp.Message)
				return nil
			case resp.Reason == protocol.ReasonInvalidRequest:
				return backoff.Permanent(fmt.Errorf("%w: %s", ErrRejected, resp.Message))
			default:
				c.logger.Debug("ignoring message", "status", resp.Status, "reason", resp.Reason)
			}
		case <-timer.C:
			return fmt.Errorf("%w: no acknowledgement for crossing complete", ErrUnresponsive)
		}
	}
}

func (c *Coordinator) readLoop(nc net.Conn, out chan<- inbound, done <-chan struct{}) {
	dec := protocol.NewDecoder(nc, c.cfg.MaxFrameSize)
	for {
		frame, err := dec.Next()
		var in inbound
		if err != nil {
			in.err = fmt.Errorf("read: %w", err)
		} else if in.resp, err = protocol.DecodeResponse(frame); err != nil {
			c.logger.Warn("skipping malformed server frame", "error", err)
			continue
		}
		select {
		case out <- in:
		case <-done:
			return
		}
		if in.err != nil {
			return
		}
	}
}

func (c *Coordinator) request(enc *protocol.Encoder) error {
	return c.send(enc, protocol.KindRequestAccess)
}

func (c *Coordinator) send(enc *protocol.Encoder, kind protocol.Kind) error {
	req := protocol.NewRequest(kind, c.cfg.ID, c.Direction(), c.now())
	if err := enc.Encode(req); err != nil {
		return err
	}
	c.logger.Debug("sent", "type", kind, "direction", req.Direction)
	return nil
}

func (c *Coordinator) adopt(d bridge.Direction) {
	if !d.Valid() {
		return
	}
	c.mu.Lock()
	c.direction = d
	c.mu.Unlock()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) setLast(r protocol.Response) {
	c.mu.Lock()
	c.last = r
	c.received++
	c.mu.Unlock()
}

func (c *Coordinator) receivedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// between draws a duration uniformly from [lo, hi]. hi wins when hi < lo.
func (c *Coordinator) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return hi
	}
	return lo + time.Duration(c.rng.Int64N(int64(hi-lo)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
