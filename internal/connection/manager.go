package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/figbridge/channelbroker/internal/protocol"
	"github.com/figbridge/channelbroker/internal/ratelimit"
)

// Dispatcher receives every parsed envelope read from a connection. It is
// the router's entry point (spec §4.4 step 2).
type Dispatcher func(conn *Connection, env *protocol.Envelope)

// CloseHook is invoked exactly once when a connection's lifecycle ends,
// regardless of which side initiated the close.
type CloseHook func(conn *Connection, reason CloseReason)

// Manager accepts WebSocket connections on a TCP listener and runs each
// one's read/write pumps, following the teacher's accept-loop shape
// (go-server-3/internal/transport/server.go) built on gobwas/ws.
type Manager struct {
	logger     zerolog.Logger
	dispatch   Dispatcher
	onClose    CloseHook
	queueSize  int
	maxFrame   int64
	acceptRate *ratelimit.Limiter

	listener net.Listener
	wg       sync.WaitGroup
}

// Config configures a Manager.
type Config struct {
	QueueSize  int
	MaxFrame   int64
	AcceptRate *ratelimit.Limiter // optional; nil disables accept throttling
}

// New constructs a Manager. dispatch and onClose must be non-nil.
func New(logger zerolog.Logger, cfg Config, dispatch Dispatcher, onClose CloseHook) *Manager {
	return &Manager{
		logger:     logger,
		dispatch:   dispatch,
		onClose:    onClose,
		queueSize:  cfg.QueueSize,
		maxFrame:   cfg.MaxFrame,
		acceptRate: cfg.AcceptRate,
	}
}

// Start binds addr and begins accepting connections in the background.
func (m *Manager) Start(ctx context.Context, addr string) error {
	if m.listener != nil {
		return errors.New("connection: manager already started")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("connection: listen %s: %w", addr, err)
	}
	m.listener = ln
	m.logger.Info().Str("addr", addr).Msg("broker listening")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.acceptLoop(ctx)
	}()

	return nil
}

// Stop closes the listener and waits for in-flight connections to finish
// their pumps.
func (m *Manager) Stop() {
	if m.listener != nil {
		_ = m.listener.Close()
	}
	m.wg.Wait()
}

func (m *Manager) acceptLoop(ctx context.Context) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Debug().Err(err).Msg("accept error")
			return
		}

		if m.acceptRate != nil && !m.acceptRate.Allow(remoteIP(conn)) {
			m.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("rejecting connection: accept rate exceeded")
			_ = conn.Close()
			continue
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.handle(ctx, conn)
		}()
	}
}

func (m *Manager) handle(parent context.Context, raw net.Conn) {
	if _, err := ws.Upgrade(raw); err != nil {
		m.logger.Debug().Err(err).Msg("websocket upgrade failed")
		_ = raw.Close()
		return
	}

	c := New(raw, m.queueSize)
	defer c.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		m.writePump(ctx, c)
	}()

	// Welcome message prompting the client to join (spec §4.4 step 1).
	c.Send(protocol.System("", "", "Welcome. Join a channel to begin."))

	pumpReason := m.readPump(ctx, c)

	cancel()
	<-writerDone

	reason := pumpReason
	if c.ForcedClose() {
		// A forced close (e.g. slow_consumer from the router) unblocks the
		// read pump via EOF; prefer the true, recorded reason over the
		// pump's generic ClosePeerClosed.
		reason = c.Reason()
	}

	if m.onClose != nil {
		m.onClose(c, reason)
	}
}

func (m *Manager) readPump(ctx context.Context, c *Connection) CloseReason {
	reader := wsutil.NewReader(c.conn, ws.StateServerSide)

	for {
		select {
		case <-ctx.Done():
			return CloseShutdown
		default:
		}

		header, err := reader.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Debug().Err(err).Msg("read frame error")
			}
			return ClosePeerClosed
		}

		switch header.OpCode {
		case ws.OpClose:
			return ClosePeerClosed
		case ws.OpPing:
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPong, nil); err != nil {
				return ClosePeerClosed
			}
			continue
		case ws.OpPong:
			continue
		case ws.OpBinary:
			// Binary frames are rejected per §4.1; drain and close.
			_, _ = io.CopyN(io.Discard, reader, header.Length)
			m.logger.Warn().Str("conn", c.ID()).Msg("binary frame rejected")
			return CloseProtocolError
		case ws.OpText:
			if header.Length > m.maxFrame {
				_, _ = io.CopyN(io.Discard, reader, header.Length)
				m.logger.Warn().Str("conn", c.ID()).Int64("size", header.Length).Msg("frame exceeds maximum size")
				return CloseProtocolError
			}

			payload := make([]byte, header.Length)
			if _, err := io.ReadFull(reader, payload); err != nil {
				return ClosePeerClosed
			}
			c.Touch()
			m.decodeAndDispatch(c, payload)
		default:
			_, _ = io.CopyN(io.Discard, reader, header.Length)
		}
	}
}

func (m *Manager) decodeAndDispatch(c *Connection, payload []byte) {
	env, err := protocol.Parse(payload)
	if err != nil {
		var ep *protocol.ErrorPayload
		if errors.As(err, &ep) && ep.Kind == protocol.ErrProtocol {
			// Framing corruption: close per spec §7.
			c.CloseWithReason(CloseProtocolError)
			return
		}
		// Ordinary bad_request: reply, keep connection open (spec §7).
		c.Send(protocol.ErrorEnvelope("", protocol.ErrBadRequest, err.Error()))
		return
	}

	m.dispatch(c, env)
}

func (m *Manager) writePump(ctx context.Context, c *Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.Outbound():
			if !ok {
				return
			}
			if err := wsutil.WriteServerMessage(c.conn, ws.OpText, payload); err != nil {
				m.logger.Debug().Err(err).Msg("write error")
				return
			}
		}
	}
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	return addr.String()
}
