// Package statusfeed pushes bridge snapshots to websocket subscribers.
//
// A Hub is registered as a bridge.Observer. Every subscriber connected to
// GET /status first receives the latest known state and then one Update
// per bridge event. The feed is read-only; messages sent by clients are
// discarded.
package statusfeed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/protocol"
)

const (
	defaultBuffer       = 16
	defaultWriteTimeout = 10 * time.Second
	readBufferSize      = 1024
	writeBufferSize     = 1024
)

// Update is one message on the feed.
type Update struct {
	Seq              int64                `json:"seq"`
	Event            bridge.EventKind     `json:"event,omitempty"`
	Actor            bridge.ActorID       `json:"actor,omitempty"`
	CurrentDirection bridge.Direction     `json:"current_direction"`
	Data             *protocol.StatusData `json:"data"`
	Timestamp        string               `json:"timestamp"`
}

// SnapshotSource provides the state sent to a subscriber that connects
// before any event has been observed. *bridge.Bridge satisfies it.
type SnapshotSource interface {
	Status() bridge.Snapshot
}

// Hub fans bridge events out to websocket subscribers.
//
// Thread-safety: Observe, ServeHTTP and Close may be called concurrently.
// Observe never blocks; a subscriber whose buffer is full loses its
// oldest pending update.
type Hub struct {
	source SnapshotSource

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	last   *Update
	closed bool

	buffer       int
	writeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithWriteTimeout bounds each websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithNow sets the wall clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub creates a hub reading initial state from source.
func NewHub(source SnapshotSource, opts ...Option) *Hub {
	h := &Hub{
		source:       source,
		subs:         make(map[*subscriber]struct{}),
		buffer:       defaultBuffer,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Observe implements bridge.Observer.
func (h *Hub) Observe(ev bridge.Event) {
	u := Update{
		Seq:              ev.Seq,
		Event:            ev.Kind,
		Actor:            ev.Actor,
		CurrentDirection: ev.Snapshot.Direction,
		Data:             protocol.NewStatusData(ev.Snapshot),
		Timestamp:        h.now().UTC().Format(time.RFC3339Nano),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &u
	for s := range h.subs {
		s.offer(u)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.stop()
		delete(h.subs, s)
	}
}

// Handler returns a mux serving the feed at /status.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/status", h)
	return mux
}

// ServeHTTP upgrades the request and streams updates until the client
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		// The feed is read-only and unauthenticated; any origin may watch.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("status feed upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s, ok := h.subscribe()
	if !ok {
		h.writeClose(conn, websocket.CloseGoingAway, "shutting down")
		return
	}
	defer h.unsubscribe(s)
	h.logger.Debug("status subscriber connected", "remote", r.RemoteAddr)

	// Drain client frames so close and ping frames are processed.
	go func() {
		defer s.stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u := <-s.ch:
			if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(u); err != nil {
				h.logger.Debug("status subscriber write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-s.done:
			h.writeClose(conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}

// subscribe registers a subscriber primed with the latest state. The
// snapshot is read before h.mu is taken: Observe runs while the bridge
// holds its emit lock, so calling into the bridge under h.mu could deadlock.
func (h *Hub) subscribe() (*subscriber, bool) {
	var initial Update
	if h.source != nil {
		snap := h.source.Status()
		initial = Update{
			CurrentDirection: snap.Direction,
			Data:             protocol.NewStatusData(snap),
			Timestamp:        h.now().UTC().Format(time.RFC3339Nano),
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	if h.last != nil {
		initial = *h.last
	}
	s := newSubscriber(h.buffer)
	if initial.Data != nil {
		s.offer(initial)
	}
	h.subs[s] = struct{}{}
	return s, true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
	if s.dropped > 0 {
		h.logger.Debug("status subscriber dropped updates", "count", s.dropped)
	}
}

func (h *Hub) writeClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.writeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// ListenAndServe serves the feed on addr until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	h.logger.Info("status feed listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// subscriber is one connected websocket.
type subscriber struct {
	ch       chan Update
	done     chan struct{}
	stopOnce sync.Once
	dropped  int // guarded by Hub.mu
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{
		ch:   make(chan Update, buffer),
		done: make(chan struct{}),
	}
}

// offer queues u, evicting the oldest pending update when full. Callers
// hold Hub.mu, so there is a single producer.
func (s *subscriber) offer(u Update) {
	select {
	case s.ch <- u:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped++
	default:
	}
	select {
	case s.ch <- u:
	default:
		s.dropped++
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
