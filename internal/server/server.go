package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/protocol"
)

// Config holds listener and per-connection settings.
type Config struct {
	Host string
	Port int

	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// WriteTimeout bounds each reply or invitation write. Zero disables it.
	WriteTimeout time.Duration

	// MaxFrameSize is the largest accepted request line in bytes.
	// Zero selects protocol.DefaultMaxFrameSize.
	MaxFrameSize int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         7777,
		WriteTimeout: 5 * time.Second,
		MaxFrameSize: protocol.DefaultMaxFrameSize,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server owns the registry and the scheduler for one bridge.
//
// Thread-safety model:
//   - one goroutine per accepted connection, plus the accept loop and the
//     scheduler, all started by Serve
//   - bridge state is only touched through *bridge.Bridge
//   - conns is guarded by mu and used to close everything on shutdown
type Server struct {
	cfg       Config
	bridge    *bridge.Bridge
	registry  *Registry
	scheduler *bridge.Scheduler
	logger    *slog.Logger
	now       func() time.Time
	sessions  SessionIDGenerator

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	handlers sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow sets the wall clock used for frame timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionIDs sets the generator used to name connections.
func WithSessionIDs(g SessionIDGenerator) Option {
	return func(s *Server) {
		if g != nil {
			s.sessions = g
		}
	}
}

// New creates a server for b. Zero-valued Config fields keep their
// defaults from DefaultConfig where a zero would be invalid.
func New(cfg Config, b *bridge.Bridge, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = def.MaxFrameSize
	}

	s := &Server{
		cfg:      cfg,
		bridge:   b,
		registry: NewRegistry(),
		logger:   slog.Default(),
		now:      time.Now,
		sessions: UUIDv7Generator{},
		conns:    make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = bridge.NewScheduler(b, s.registry, bridge.WithSchedulerLogger(s.logger))
	return s
}

// Registry returns the server's actor registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Addr returns the listener address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and every open connection, stops the scheduler and waits for
// all connection handlers to finish. It returns nil after a
// cancellation-triggered shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		s.closeAll()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	err := g.Wait()
	s.handlers.Wait()
	s.logger.Info("server stopped")

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := newConn(s.sessions.Generate(), nc, s.cfg.WriteTimeout, s.now)
		if !s.track(c) {
			_ = nc.Close()
			return nil
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handle(c)
		}()
	}
}

// track registers c for shutdown. It returns false once shutdown began.
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns != nil {
		delete(s.conns, c)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for c := range conns {
		_ = c.nc.Close()
	}
}

// handle runs the read loop of one connection.
func (s *Server) handle(c *conn) {
	logger := s.logger.With("session", c.session, "remote", c.nc.RemoteAddr().String())
	logger.Info("connection opened")

	defer func() {
		_ = c.nc.Close()
		s.disconnect(c, logger)
		s.untrack(c)
	}()

	dec := protocol.NewDecoder(c.nc, s.cfg.MaxFrameSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		frame, err := dec.Next()
		if err != nil {
			s.logReadEnd(logger, err)
			return
		}

		resp := s.route(c, frame, logger)
		if err := c.send(resp); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

func (s *Server) logReadEnd(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Info("connection closed by peer")
	case errors.Is(err, os.ErrDeadlineExceeded):
		logger.Info("connection idle timeout", "timeout", s.cfg.IdleTimeout)
	case errors.Is(err, protocol.ErrFrameTooLarge):
		logger.Warn("frame too large, closing connection", "max", s.cfg.MaxFrameSize)
	case errors.Is(err, net.ErrClosed):
		logger.Debug("connection closed locally")
	default:
		logger.Warn("read failed", "error", err)
	}
}

// disconnect drops the actor's registry entry and its bridge state, unless
// another connection has taken the id over.
func (s *Server) disconnect(c *conn, logger *slog.Logger) {
	if c.actor == "" {
		logger.Info("connection ended before binding an actor")
		return
	}
	purged := s.bridge.PurgeIf(c.actor, func() bool {
		return s.registry.Unregister(c.actor, c)
	})
	logger.Info("connection ended", "actor", c.actor, "purged", purged)
}

// route applies one frame and returns the reply.
func (s *Server) route(c *conn, frame []byte, logger *slog.Logger) protocol.Response {
	now := s.now()

	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		logger.Warn("malformed frame", "error", err)
		return protocol.Invalid(err, s.bridge.Status().Direction, now)
	}
	cmd, err := protocol.Validate(req)
	if err != nil {
		logger.Warn("invalid request", "error", err)
		return protocol.Invalid(err, s.bridge.Status().Direction, now)
	}

	if c.actor == "" {
		c.actor = cmd.Actor
		if prev := s.registry.Register(cmd.Actor, c); prev != nil {
			logger.Info("actor reconnected, previous connection superseded", "actor", cmd.Actor)
		} else {
			logger.Debug("actor bound", "actor", cmd.Actor)
		}
	} else if cmd.Actor != c.actor {
		err := &protocol.RequestError{
			Field:   "id",
			Message: fmt.Sprintf("connection is bound to %s", c.actor),
		}
		logger.Warn("invalid request", "error", err)
		return protocol.Invalid(err, s.bridge.Status().Direction, now)
	}

	switch cmd.Kind {
	case protocol.KindRequestAccess:
		return s.requestAccess(cmd, now, logger)
	case protocol.KindCrossingComplete:
		return s.crossingComplete(cmd, now, logger)
	default:
		return protocol.Status(s.bridge.Status(), now)
	}
}

func (s *Server) requestAccess(cmd protocol.Command, now time.Time, logger *slog.Logger) protocol.Response {
	out, err := s.bridge.RequestEntry(cmd.Actor, cmd.Direction)
	if err != nil {
		logger.Warn("request rejected", "actor", cmd.Actor, "error", err)
		return protocol.Invalid(err, s.bridge.Status().Direction, now)
	}
	logger.Debug("request access", "actor", cmd.Actor, "direction", cmd.Direction, "outcome", out)

	switch out {
	case bridge.Granted:
		return protocol.Granted(out, cmd.Actor, cmd.Direction, now)
	case bridge.AlreadyCrossing:
		return protocol.Granted(out, cmd.Actor, s.bridge.Status().Direction, now)
	default:
		return protocol.Queued(cmd.Actor, s.bridge.Status().Direction, now)
	}
}

func (s *Server) crossingComplete(cmd protocol.Command, now time.Time, logger *slog.Logger) protocol.Response {
	if err := s.bridge.Release(cmd.Actor); err != nil {
		logger.Warn("crossing complete from actor not on the bridge", "actor", cmd.Actor)
		return protocol.NotOnBridge(cmd.Actor, s.bridge.Status().Direction, now)
	}
	logger.Debug("crossing complete", "actor", cmd.Actor)
	return protocol.Released(cmd.Actor, s.bridge.Status().Direction, now)
}

// openConns returns the number of tracked connections.
func (s *Server) openConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
