package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/protocol"
)

// Config describes one vehicle and how it talks to the server.
type Config struct {
	Addr      string
	ID        bridge.ActorID
	Direction bridge.Direction

	// Time spent on the bridge is drawn uniformly from [MinCrossing, MaxCrossing].
	MinCrossing time.Duration
	MaxCrossing time.Duration

	// Pause after each crossing is drawn uniformly from [MinDelay, MaxDelay].
	MinDelay time.Duration
	MaxDelay time.Duration

	// ResponseTimeout bounds the wait for any server message while
	// awaiting a grant or a release acknowledgement.
	ResponseTimeout time.Duration

	// RetryDelay is the pause before re-requesting after a QUEUED reply.
	RetryDelay time.Duration

	// MaxSilentTimeouts consecutive response timeouts mark the connection
	// as failed.
	MaxSilentTimeouts int

	// MaxRetries bounds consecutive reconnect attempts. Zero means the
	// first connection failure is fatal.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DialTimeout    time.Duration

	// MaxFrameSize bounds a single server frame.
	MaxFrameSize int

	// Crossings stops the coordinator after that many completed crossings.
	// Zero means run until cancelled.
	Crossings int
}

// DefaultConfig returns the settings used by `onelane drive`.
func DefaultConfig() Config {
	return Config{
		Addr:              "127.0.0.1:7777",
		Direction:         bridge.Left,
		MinCrossing:       time.Second,
		MaxCrossing:       5 * time.Second,
		MinDelay:          time.Second,
		MaxDelay:          5 * time.Second,
		ResponseTimeout:   20 * time.Second,
		RetryDelay:        time.Second,
		MaxSilentTimeouts: 3,
		MaxRetries:        5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		DialTimeout:       5 * time.Second,
		MaxFrameSize:      protocol.DefaultMaxReplySize,
	}
}

// withDefaults fills zero-valued tuning fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.MaxSilentTimeouts <= 0 {
		c.MaxSilentTimeouts = def.MaxSilentTimeouts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	return c
}

// Validate checks the vehicle parameters.
func (c Config) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if !c.Direction.Valid() {
		errs = append(errs, fmt.Errorf("direction must be left or right, got %q", c.Direction))
	}
	if c.MaxCrossing <= 0 {
		errs = append(errs, errors.New("max crossing time must be positive"))
	}
	if c.MaxDelay <= 0 {
		errs = append(errs, errors.New("max delay must be positive"))
	}
	if c.MinCrossing < 0 || c.MinDelay < 0 {
		errs = append(errs, errors.New("minimum durations must not be negative"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries must not be negative"))
	}
	if c.Crossings < 0 {
		errs = append(errs, errors.New("crossings must not be negative"))
	}
	return errors.Join(errs...)
}
