package mcpadapter

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/figbridge/channelbroker/internal/protocol"
)

// connState is the MCP adapter WebSocket state machine (spec §4.8):
// disconnected -> connecting -> open -> disconnected, reconnecting unless
// shutting down.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateOpen
)

// BrokerClient owns the adapter's single WebSocket connection to the
// broker, reconnecting with a fixed backoff on every close except during
// shutdown. Grounded on the teacher's gorilla/websocket client
// (go-server/pkg/websocket/client.go), adapted from a server-accepted
// connection to a dialed one with a reconnect loop.
type BrokerClient struct {
	url      string
	backoff  time.Duration
	logger   zerolog.Logger
	onInbound func(*protocol.Envelope)

	mu    sync.Mutex
	state connState
	conn  *websocket.Conn

	outbound chan []byte
	shutdown chan struct{}
	done     chan struct{}
}

// NewBrokerClient constructs a client. onInbound is called from the read
// loop for every envelope received; it must not block.
func NewBrokerClient(url string, backoff time.Duration, logger zerolog.Logger, onInbound func(*protocol.Envelope)) *BrokerClient {
	return &BrokerClient{
		url:       url,
		backoff:   backoff,
		logger:    logger,
		onInbound: onInbound,
		outbound:  make(chan []byte, 64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run dials the broker and maintains the connection until ctx is
// cancelled or Stop is called, reconnecting after every close.
func (c *BrokerClient) Run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		c.setState(stateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", c.url).Msg("broker dial failed, retrying")
			if !c.sleepOrStop(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(stateOpen)
		c.logger.Info().Str("url", c.url).Msg("connected to broker")

		c.runConnection(ctx, conn)

		c.setState(stateDisconnected)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}
		if !c.sleepOrStop(ctx) {
			return
		}
	}
}

func (c *BrokerClient) sleepOrStop(ctx context.Context) bool {
	select {
	case <-time.After(c.backoff):
		return true
	case <-ctx.Done():
		return false
	case <-c.shutdown:
		return false
	}
}

// runConnection drives one connection's read loop and outbound drain until
// either fails, returning once the connection is no longer usable.
func (c *BrokerClient) runConnection(ctx context.Context, conn *websocket.Conn) {
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Parse(data)
			if err != nil {
				c.logger.Debug().Err(err).Msg("dropping malformed frame from broker")
				continue
			}
			c.onInbound(env)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-readErr:
			return
		case payload := <-c.outbound:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug().Err(err).Msg("write to broker failed")
				return
			}
		}
	}
}

// Send enqueues an envelope for delivery once the connection is open. It
// blocks until ctx is done, the client shuts down, or the frame is queued.
func (c *BrokerClient) Send(ctx context.Context, env *protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.shutdown:
		return context.Canceled
	}
}

// State reports the current connection state, for diagnostics/tests.
func (c *BrokerClient) State() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *BrokerClient) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Stop ends the reconnect loop permanently; no further dial attempts are
// made (spec §4.8: "except during shutdown").
func (c *BrokerClient) Stop() {
	close(c.shutdown)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.done
}
