// Package router implements the dispatcher (spec §4.5): given a connection
// and its parsed envelope, decide whether to join, forward, answer locally,
// or drop. Grounded on the teacher's handleClientMessage switch
// (ws/internal/shared/handlers_message.go), generalized from a fixed
// message-type switch to the envelope's five-way Type plus a pluggable
// local-command table.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/figbridge/channelbroker/internal/channels"
	"github.com/figbridge/channelbroker/internal/connection"
	"github.com/figbridge/channelbroker/internal/metrics"
	"github.com/figbridge/channelbroker/internal/pending"
	"github.com/figbridge/channelbroker/internal/protocol"
)

// LocalHandler answers a request without forwarding it to the channel.
// It never panics; any failure is reported as an ErrorPayload with kind
// internal (spec §4.8 failure semantics), not a Go error return, so the
// router can always produce a reply envelope.
type LocalHandler func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload)

// Router dispatches envelopes read off any connection.
type Router struct {
	logger   zerolog.Logger
	registry *channels.Registry
	metrics  *metrics.Registry

	// analytics is a provisional, best-effort tracking table for forwarded
	// requests (spec §4.5: "Record a provisional analytics entry keyed by
	// message.id"). It is deliberately not awaited by anything; its
	// Resolve/Reject callbacks only drive metrics.
	analytics *pending.Table

	locals map[string]LocalHandler
}

// New constructs a Router. reg and m must be non-nil.
func New(logger zerolog.Logger, reg *channels.Registry, m *metrics.Registry) *Router {
	r := &Router{
		logger:   logger,
		registry: reg,
		metrics:  m,
		locals:   make(map[string]LocalHandler),
	}
	r.analytics = pending.New(pending.Options{
		OnResolved: func(id string) { m.RequestsResolved.Inc() },
		OnRejected: func(id string, kind protocol.ErrorKind) {
			if kind == protocol.ErrTimeout {
				m.RequestsTimedOut.Inc()
			} else {
				m.RequestsRejected.Inc()
			}
		},
	})
	return r
}

// RegisterLocal adds command to the local command set (spec §4.6). It is
// not safe to call concurrently with Dispatch; register every handler
// during construction.
func (r *Router) RegisterLocal(command string, h LocalHandler) {
	r.locals[command] = h
}

// Stop releases the router's internal analytics table.
func (r *Router) Stop() {
	r.analytics.Stop()
}

// Dispatch routes one parsed envelope from conn. It never panics: every
// internal failure becomes an error envelope reply to the sender (spec §7).
func (r *Router) Dispatch(ctx context.Context, conn *connection.Connection, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoin:
		r.handleJoin(conn, env)
	case protocol.TypeMessage:
		r.handleMessage(ctx, conn, env)
	case protocol.TypeProgressUpdate:
		r.handleProgress(conn, env)
	case protocol.TypeSystem, protocol.TypeError:
		// Diagnostic-only types; never forwarded or acted on (spec §6).
	default:
		r.logger.Warn().Str("type", string(env.Type)).Str("conn", conn.ID()).Msg("unknown envelope type")
		conn.Send(protocol.ErrorEnvelope(env.ID, protocol.ErrBadRequest, fmt.Sprintf("unknown type: %s", env.Type)))
	}
}

// OnDisconnect must be called once a connection's pumps have returned, to
// unwind its channel memberships and notify remaining members (spec §4.4
// step 4, invariant 4: "After a connection closes, it appears in no
// channel's member set").
func (r *Router) OnDisconnect(conn *connection.Connection) {
	memberships := r.channelsOf(conn)
	r.registry.RemoveMember(conn.ID())
	for _, ch := range memberships {
		for _, other := range r.registry.Others(ch, conn.ID()) {
			if oc, ok := other.(*connection.Connection); ok {
				oc.Send(protocol.System(ch, "", "A user has left the channel"))
			}
		}
	}
}

// channelsOf is a best-effort snapshot of conn's memberships, computed by
// probing every channel the registry currently knows about. The registry
// does not expose a direct member->channels view (it is an implementation
// detail of its reverse index), so callers that need the list ahead of
// RemoveMember use ActiveChannels as the source of channel names.
func (r *Router) channelsOf(conn *connection.Connection) []string {
	var out []string
	for _, cc := range r.registry.ActiveChannels() {
		if r.registry.IsMember(cc.Name, conn.ID()) {
			out = append(out, cc.Name)
		}
	}
	return out
}

func (r *Router) handleJoin(conn *connection.Connection, env *protocol.Envelope) {
	if env.Channel == "" {
		conn.Send(protocol.ErrorEnvelope(env.ID, protocol.ErrBadRequest, "join requires a non-empty channel"))
		return
	}

	clientType := env.ClientType
	if clientType == "" || clientType == protocol.ClientUnknown {
		clientType = protocol.ClientController
	}
	conn.SetClientType(clientType)

	r.registry.Join(env.Channel, conn)
	r.metrics.ActiveChannels.Set(float64(r.registry.Count()))

	conn.Send(protocol.System(env.Channel, env.ID, fmt.Sprintf("Joined channel: %s", env.Channel)))

	for _, other := range r.registry.Others(env.Channel, conn.ID()) {
		if oc, ok := other.(*connection.Connection); ok {
			oc.Send(protocol.System(env.Channel, "", "A new user has joined the channel"))
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, conn *connection.Connection, env *protocol.Envelope) {
	msg := env.Message
	switch {
	case msg.IsRequest():
		r.handleRequest(ctx, conn, env)
	case msg.IsResponse():
		r.handleResponse(conn, env)
	default:
		// Neither a clear request nor a clear response: a client's own
		// echoed envelope, most likely. Drop rather than mis-correlate it
		// as a response (spec §4.5 edge-case policy).
		r.logger.Debug().Str("conn", conn.ID()).Str("envelope_id", env.ID).Msg("dropping ambiguous message envelope")
		r.metrics.MessagesDropped.WithLabelValues("ambiguous").Inc()
	}
}

func (r *Router) handleRequest(ctx context.Context, conn *connection.Connection, env *protocol.Envelope) {
	msg := env.Message

	if h, ok := r.locals[msg.Command]; ok {
		result, errPayload := h(ctx, conn, env.Channel, msg)
		r.metrics.RequestsLocal.Inc()
		conn.Send(protocol.Reply(env.ID, msg.ID, result, errPayload))
		return
	}

	if env.Channel == "" {
		conn.Send(protocol.ErrorEnvelope(env.ID, protocol.ErrBadRequest, "message requires a non-empty channel"))
		return
	}
	if !r.registry.IsMember(env.Channel, conn.ID()) {
		conn.Send(protocol.ErrorEnvelope(env.ID, protocol.ErrNotJoined, fmt.Sprintf("not a member of channel %s", env.Channel)))
		return
	}

	raw, err := protocol.Encode(env)
	if err != nil {
		conn.Send(protocol.ErrorEnvelope(env.ID, protocol.ErrInternal, "failed to re-encode envelope"))
		return
	}

	delivered := r.broadcast(env.Channel, conn.ID(), raw)
	r.metrics.RequestsForwarded.Inc()
	if delivered > 0 {
		r.metrics.MessagesRouted.Inc()
	}

	// Provisional analytics entry keyed by message.id (spec §4.5). Errors
	// here (duplicate id) are swallowed: analytics is best-effort and must
	// never affect forwarding.
	_, _ = r.analytics.Register(msg.ID, msg.Command)
}

func (r *Router) handleResponse(conn *connection.Connection, env *protocol.Envelope) {
	msg := env.Message

	if env.Channel != "" {
		raw, err := protocol.Encode(env)
		if err == nil {
			if n := r.broadcast(env.Channel, conn.ID(), raw); n > 0 {
				r.metrics.MessagesRouted.Inc()
			}
		}
	}

	if msg.Error != nil {
		r.analytics.Reject(msg.ID, msg.Error)
	} else {
		r.analytics.Resolve(msg.ID, msg.Result)
	}
}

func (r *Router) handleProgress(conn *connection.Connection, env *protocol.Envelope) {
	if env.Channel != "" {
		if raw, err := protocol.Encode(env); err == nil {
			r.broadcast(env.Channel, conn.ID(), raw)
		}
	}
	if env.Message != nil {
		r.analytics.Extend(env.Message.ID)
	}
}

// broadcast sends raw to every other member of channel, returning how many
// accepted it. A member whose outbound queue is full is closed with
// CloseSlowConsumer rather than dropped silently, so backpressure remains
// visible at the connection that caused it (spec §4.4).
func (r *Router) broadcast(channel, excludeID string, raw []byte) int {
	delivered := 0
	for _, m := range r.registry.Others(channel, excludeID) {
		oc, ok := m.(*connection.Connection)
		if !ok {
			continue
		}
		if oc.SendRaw(raw) {
			delivered++
		} else {
			r.metrics.SlowConsumerDisconnects.Inc()
			oc.CloseWithReason(connection.CloseSlowConsumer)
		}
	}
	return delivered
}
