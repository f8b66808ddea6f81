package restapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figbridge/channelbroker/internal/protocol"
)

func TestDo_MissingCredentials_ReturnsUnauthenticated(t *testing.T) {
	c := New("http://example.invalid", 0, nil, Credentials{})

	errPayload := c.Do(context.Background(), http.MethodGet, "/comments", nil, nil)

	require.NotNil(t, errPayload)
	assert.Equal(t, protocol.ErrUnauthenticated, errPayload.Kind)
}

func TestDo_SuccessDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil, Credentials{AccessToken: "tok"})

	var out struct {
		ID string `json:"id"`
	}
	errPayload := c.Do(context.Background(), http.MethodGet, "/comments", nil, &out)

	require.Nil(t, errPayload)
	assert.Equal(t, "c1", out.ID)
}

func TestDo_NonTwoXXReturnsUpstreamWithExcerpt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil, Credentials{AccessToken: "tok"})

	errPayload := c.Do(context.Background(), http.MethodGet, "/comments", nil, nil)

	require.NotNil(t, errPayload)
	assert.Equal(t, protocol.ErrUpstream, errPayload.Kind)
	assert.Equal(t, http.StatusForbidden, errPayload.Status)
	assert.Contains(t, errPayload.Excerpt, "forbidden")
}

func TestFileKey_FallsBackToDefault(t *testing.T) {
	c := New("http://example.invalid", 0, nil, Credentials{DefaultFileKey: "abc123"})

	assert.Equal(t, "abc123", c.FileKey(""))
	assert.Equal(t, "explicit", c.FileKey("explicit"))
}
