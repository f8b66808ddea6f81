package router

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figbridge/channelbroker/internal/channels"
	"github.com/figbridge/channelbroker/internal/connection"
	"github.com/figbridge/channelbroker/internal/logging"
	"github.com/figbridge/channelbroker/internal/metrics"
	"github.com/figbridge/channelbroker/internal/protocol"
)

func newTestConn(t *testing.T) *connection.Connection {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	return connection.New(server, 8)
}

func newTestRouter(t *testing.T) (*Router, *channels.Registry) {
	reg := channels.New()
	m := metrics.NewRegistry()
	r := New(logging.New(logging.Options{}), reg, m)
	t.Cleanup(r.Stop)
	return r, reg
}

func recvEnvelope(t *testing.T, c *connection.Connection) *protocol.Envelope {
	select {
	case raw := <-c.Outbound():
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return &env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound envelope")
		return nil
	}
}

func TestHandleJoin_AcksSenderAndNotifiesOthers(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	controller := newTestConn(t)
	r.Dispatch(ctx, controller, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1", ID: "j1", ClientType: protocol.ClientController})
	ack := recvEnvelope(t, controller)
	assert.Equal(t, protocol.TypeSystem, ack.Type)
	assert.Equal(t, "j1", ack.ID)

	executor := newTestConn(t)
	r.Dispatch(ctx, executor, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1", ClientType: protocol.ClientExecutor})
	recvEnvelope(t, executor) // its own ack

	notice := recvEnvelope(t, controller)
	assert.Equal(t, protocol.TypeSystem, notice.Type)
}

func TestHandleMessage_ForwardsRequestToOtherMembers(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	controller := newTestConn(t)
	executor := newTestConn(t)
	r.Dispatch(ctx, controller, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, controller)
	r.Dispatch(ctx, executor, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, executor)
	recvEnvelope(t, controller) // join notice

	req := &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: "fig-1",
		ID:      "e1",
		Message: &protocol.InnerMessage{ID: "r1", Command: "get_document_info", Params: json.RawMessage(`{}`)},
	}
	r.Dispatch(ctx, controller, req)

	forwarded := recvEnvelope(t, executor)
	assert.Equal(t, "e1", forwarded.ID)
	assert.Equal(t, "r1", forwarded.Message.ID)
	assert.Equal(t, "get_document_info", forwarded.Message.Command)
}

func TestHandleMessage_RejectsRequestFromNonMember(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	controller := newTestConn(t)
	req := &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: "fig-1",
		ID:      "e1",
		Message: &protocol.InnerMessage{ID: "r1", Command: "get_document_info", Params: json.RawMessage(`{}`)},
	}
	r.Dispatch(ctx, controller, req)

	errEnv := recvEnvelope(t, controller)
	assert.Equal(t, protocol.TypeError, errEnv.Type)
	assert.Equal(t, protocol.ErrNotJoined, errEnv.Message.Error.Kind)
}

func TestHandleMessage_ResponseIsForwardedAndCorrelated(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	controller := newTestConn(t)
	executor := newTestConn(t)
	r.Dispatch(ctx, controller, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, controller)
	r.Dispatch(ctx, executor, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, executor)
	recvEnvelope(t, controller)

	r.Dispatch(ctx, controller, &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: "fig-1",
		ID:      "e1",
		Message: &protocol.InnerMessage{ID: "r1", Command: "get_document_info", Params: json.RawMessage(`{}`)},
	})
	recvEnvelope(t, executor)

	r.Dispatch(ctx, executor, &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: "fig-1",
		ID:      "e2",
		Message: &protocol.InnerMessage{ID: "r1", Result: json.RawMessage(`{"name":"Doc","pages":1}`)},
	})

	resp := recvEnvelope(t, controller)
	assert.Equal(t, "r1", resp.Message.ID)
	assert.JSONEq(t, `{"name":"Doc","pages":1}`, string(resp.Message.Result))
}

func TestHandleMessage_LocalCommandAnswersSenderOnly(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	called := false
	r.RegisterLocal("get_active_channels", func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		called = true
		return json.RawMessage(`"Active channels (1): fig-1"`), nil
	})

	controller := newTestConn(t)
	executor := newTestConn(t)
	r.Dispatch(ctx, controller, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, controller)
	r.Dispatch(ctx, executor, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, executor)
	recvEnvelope(t, controller)

	r.Dispatch(ctx, controller, &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: "fig-1",
		ID:      "e3",
		Message: &protocol.InnerMessage{ID: "r3", Command: "get_active_channels", Params: json.RawMessage(`{}`)},
	})

	assert.True(t, called)
	reply := recvEnvelope(t, controller)
	assert.Equal(t, "e3", reply.ID)
	assert.Equal(t, "r3", reply.Message.ID)
	assert.JSONEq(t, `"Active channels (1): fig-1"`, string(reply.Message.Result))

	select {
	case <-executor.Outbound():
		t.Fatal("executor should not have received the local command")
	default:
	}
}

func TestHandleMessage_AmbiguousInnerMessageIsDropped(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	controller := newTestConn(t)
	r.Dispatch(ctx, controller, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, controller)

	r.Dispatch(ctx, controller, &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: "fig-1",
		ID:      "e9",
		Message: &protocol.InnerMessage{ID: "r9"}, // neither command nor result/error
	})

	select {
	case <-controller.Outbound():
		t.Fatal("ambiguous message should be dropped, not replied to")
	default:
	}
}

func TestOnDisconnect_RemovesMembershipAndNotifiesOthers(t *testing.T) {
	r, reg := newTestRouter(t)
	ctx := context.Background()

	a := newTestConn(t)
	b := newTestConn(t)
	r.Dispatch(ctx, a, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, a)
	r.Dispatch(ctx, b, &protocol.Envelope{Type: protocol.TypeJoin, Channel: "fig-1"})
	recvEnvelope(t, b)
	recvEnvelope(t, a) // join notice

	r.OnDisconnect(a)

	assert.False(t, reg.IsMember("fig-1", a.ID()))
	notice := recvEnvelope(t, b)
	assert.Equal(t, protocol.TypeSystem, notice.Type)
}

func TestDispatch_UnknownTypeRepliesWithError(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	c := newTestConn(t)
	r.Dispatch(ctx, c, &protocol.Envelope{Type: "bogus", ID: "x1"})

	errEnv := recvEnvelope(t, c)
	assert.Equal(t, protocol.TypeError, errEnv.Type)
	assert.Equal(t, protocol.ErrBadRequest, errEnv.Message.Error.Kind)
}
