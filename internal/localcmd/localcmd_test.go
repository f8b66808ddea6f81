package localcmd

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figbridge/channelbroker/internal/channels"
	"github.com/figbridge/channelbroker/internal/connection"
	"github.com/figbridge/channelbroker/internal/diagnostics"
	"github.com/figbridge/channelbroker/internal/protocol"
	"github.com/figbridge/channelbroker/internal/restapi"
)

func newTestConn(t *testing.T) *connection.Connection {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	return connection.New(server, 8)
}

func TestGetActiveChannels_ListsSortedNames(t *testing.T) {
	reg := channels.New()
	conn := newTestConn(t)
	reg.Join("fig-b", conn)
	reg.Join("fig-a", newTestConn(t))

	h := getActiveChannels(reg)
	result, errPayload := h(context.Background(), conn, "", &protocol.InnerMessage{Command: "get_active_channels"})

	require.Nil(t, errPayload)
	var summary string
	require.NoError(t, json.Unmarshal(result, &summary))
	assert.Contains(t, summary, "fig-a")
	assert.Contains(t, summary, "fig-b")
}

func TestConnectionDiagnostics_ReturnsSnapshotWithPort(t *testing.T) {
	reg := channels.New()
	diag := diagnostics.New(3055)

	h := connectionDiagnostics(diag, reg)
	result, errPayload := h(context.Background(), newTestConn(t), "", &protocol.InnerMessage{})

	require.Nil(t, errPayload)
	var snap diagnostics.Snapshot
	require.NoError(t, json.Unmarshal(result, &snap))
	assert.Equal(t, 3055, snap.Port)
}

func TestGetComments_PropagatesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rest := restapi.New(srv.URL, 0, nil, restapi.Credentials{AccessToken: "tok", DefaultFileKey: "f1"})
	h := getComments(rest)

	params, _ := json.Marshal(map[string]string{})
	_, errPayload := h(context.Background(), newTestConn(t), "", &protocol.InnerMessage{Params: params})

	require.NotNil(t, errPayload)
	assert.Equal(t, protocol.ErrUpstream, errPayload.Kind)
}

func TestGetComments_MissingCredentials(t *testing.T) {
	rest := restapi.New("http://example.invalid", 0, nil, restapi.Credentials{})
	h := getComments(rest)

	_, errPayload := h(context.Background(), newTestConn(t), "", &protocol.InnerMessage{})

	require.NotNil(t, errPayload)
	assert.Equal(t, protocol.ErrUnauthenticated, errPayload.Kind)
}
