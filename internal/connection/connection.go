// Package connection implements the connection manager (spec §4.4): a
// per-connection read loop and single writer drain over a bounded
// outbound queue, classification of controller vs executor, and cleanup
// on close. The accept/upgrade loop is grounded on the teacher's gobwas/ws
// transport (go-server-3/internal/transport/server.go, ws/internal/shared
// read/write pumps); per-connection state is grounded on
// ws/internal/shared/connection.go's Client struct.
package connection

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/figbridge/channelbroker/internal/protocol"
)

// CloseReason records why a connection was torn down, for observability.
type CloseReason string

const (
	ClosePeerClosed    CloseReason = "peer_closed"
	CloseSlowConsumer  CloseReason = "slow_consumer"
	CloseProtocolError CloseReason = "protocol_error"
	CloseShutdown      CloseReason = "shutdown"
)

// Connection is one accepted WebSocket connection. It owns an outbound
// queue drained by a single writer goroutine, so a slow peer applies
// backpressure only to itself (spec §4.4, §5).
type Connection struct {
	id   string
	conn net.Conn

	classification atomic.Value // protocol.ClientType

	connectedAt  time.Time
	lastActivity atomic.Int64 // unix nanos

	outbound chan []byte

	closeReason atomic.Value // CloseReason, set by whichever side forces the close
	closeOnce   sync.Once
	closed      chan struct{}
}

// New wraps an accepted net.Conn with the bookkeeping described above.
// queueSize bounds the outbound queue (spec §4.4 suggests 256).
func New(conn net.Conn, queueSize int) *Connection {
	c := &Connection{
		id:          uuid.NewString(),
		conn:        conn,
		connectedAt: time.Now(),
		outbound:    make(chan []byte, queueSize),
		closed:      make(chan struct{}),
	}
	c.classification.Store(protocol.ClientUnknown)
	c.lastActivity.Store(time.Now().UnixNano())
	return c
}

// ID returns the connection's opaque identity (channels.Member).
func (c *Connection) ID() string { return c.id }

// ClientType returns the connection's current self-declared role.
func (c *Connection) ClientType() protocol.ClientType {
	return c.classification.Load().(protocol.ClientType)
}

// SetClientType records the role declared on the connection's first join.
// Per spec §3, this only happens once: the classification is "unknown"
// until the first join, then becomes sticky.
func (c *Connection) SetClientType(ct protocol.ClientType) {
	if c.ClientType() == protocol.ClientUnknown && ct != "" && ct != protocol.ClientUnknown {
		c.classification.Store(ct)
	}
}

// ClassifiedAs implements channels.Classifier for diagnostics.
func (c *Connection) ClassifiedAs() (controller bool, executor bool) {
	switch c.ClientType() {
	case protocol.ClientController:
		return true, false
	case protocol.ClientExecutor:
		return false, true
	default:
		return false, false
	}
}

// ConnectedAt returns when the connection was accepted.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// LastActivity returns the time of the most recent inbound frame.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Touch records inbound activity, for diagnostics/idle detection.
func (c *Connection) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Send enqueues an envelope for delivery. It returns false (without
// blocking) if the outbound queue is full, signalling the caller to close
// the connection with CloseSlowConsumer (spec §4.4).
func (c *Connection) Send(env *protocol.Envelope) bool {
	raw, err := protocol.Encode(env)
	if err != nil {
		return false
	}
	return c.SendRaw(raw)
}

// SendRaw enqueues a pre-encoded frame, used for pass-through forwarding
// where the router need not re-marshal the payload (spec §4.1).
func (c *Connection) SendRaw(raw []byte) bool {
	select {
	case c.outbound <- raw:
		return true
	default:
		return false
	}
}

// Outbound exposes the queue for the writer pump to drain.
func (c *Connection) Outbound() <-chan []byte { return c.outbound }

// Closed reports whether the connection has been torn down.
func (c *Connection) Closed() <-chan struct{} { return c.closed }

// Close tears down the underlying socket exactly once.
func (c *Connection) Close() {
	c.CloseWithReason(ClosePeerClosed)
}

// CloseWithReason tears down the connection, recording why, so the
// manager's close hook can log and account for the true cause (e.g.
// slow_consumer) even though the read pump simply observes EOF.
func (c *Connection) CloseWithReason(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.closeReason.Store(reason)
		close(c.closed)
		_ = c.conn.Close()
	})
}

// Reason reports the reason passed to whichever CloseWithReason call
// actually closed the connection (or ClosePeerClosed if Close() was used).
func (c *Connection) Reason() CloseReason {
	if v := c.closeReason.Load(); v != nil {
		return v.(CloseReason)
	}
	return ClosePeerClosed
}

// ForcedClose reports whether something has already called
// CloseWithReason/Close on this connection, i.e. whether Reason() reflects
// a real cause rather than the zero value.
func (c *Connection) ForcedClose() bool {
	return c.closeReason.Load() != nil
}

// RemoteAddr returns the peer address, used for per-IP rate limiting and
// diagnostics.
func (c *Connection) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
