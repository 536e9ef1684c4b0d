package harness

import (
	"errors"
	"sync"

	"github.com/roach88/onelane/internal/bridge"
)

var errBrokenConnection = errors.New("connection broken")

// directory is the harness's stand-in for the server registry. Actors
// connect on their first request; invitations are recorded, not sent.
type directory struct {
	mu      sync.Mutex
	actors  map[bridge.ActorID]*endpoint
	invited []bridge.Invitation
}

type endpoint struct {
	dir    *directory
	actor  bridge.ActorID
	broken bool
}

func newDirectory() *directory {
	return &directory{actors: make(map[bridge.ActorID]*endpoint)}
}

func (d *directory) connect(actor bridge.ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.actors[actor]; !ok {
		d.actors[actor] = &endpoint{dir: d, actor: actor}
	}
}

func (d *directory) disconnect(actor bridge.ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.actors, actor)
}

// breakConn connects actor if needed and makes its next invitation fail.
func (d *directory) breakConn(actor bridge.ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ep, ok := d.actors[actor]
	if !ok {
		ep = &endpoint{dir: d, actor: actor}
		d.actors[actor] = ep
	}
	ep.broken = true
}

// Lookup implements bridge.Directory.
func (d *directory) Lookup(actor bridge.ActorID) (bridge.Inviter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ep, ok := d.actors[actor]
	if !ok {
		return nil, false
	}
	return ep, true
}

// Invite implements bridge.Inviter. A broken endpoint fails once and is
// then removed, as a dead socket would be.
func (e *endpoint) Invite(inv bridge.Invitation) error {
	d := e.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.broken {
		if d.actors[e.actor] == e {
			delete(d.actors, e.actor)
		}
		return errBrokenConnection
	}
	d.invited = append(d.invited, inv)
	return nil
}
