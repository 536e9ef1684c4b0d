package server

import (
	"net"
	"sync"
	"time"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/protocol"
)

// conn is one accepted connection. Replies from the handler goroutine and
// invitations from the Scheduler both go through send.
type conn struct {
	session      string
	nc           net.Conn
	enc          *protocol.Encoder
	writeTimeout time.Duration
	now          func() time.Time

	writeMu sync.Mutex

	// actor is the id this connection is bound to. Only the handler
	// goroutine touches it.
	actor bridge.ActorID
}

func newConn(session string, nc net.Conn, writeTimeout time.Duration, now func() time.Time) *conn {
	return &conn{
		session:      session,
		nc:           nc,
		enc:          protocol.NewEncoder(nc),
		writeTimeout: writeTimeout,
		now:          now,
	}
}

func (c *conn) send(r protocol.Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.enc.Encode(r)
}

// Invite implements bridge.Inviter.
func (c *conn) Invite(inv bridge.Invitation) error {
	return c.send(protocol.Invite(inv, c.now()))
}
