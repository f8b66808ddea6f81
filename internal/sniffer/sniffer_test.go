package sniffer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestSniffer_SSERequestReturns426AndFiresOnce(t *testing.T) {
	port := freePort(t)
	var hits int32
	s := New(fmt.Sprintf("127.0.0.1:%d", port), time.Minute, zerolog.Nop(), func() { atomic.AddInt32(&hits, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/sse", port))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	assert.Equal(t, "stdio", resp.Header.Get("Upgrade"))

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &out))
	migration := out["migration"].(map[string]any)
	assert.Contains(t, migration["from"], "/sse")
	assert.Contains(t, migration["to"], "stdio")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sniffer did not stop after first hit")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSniffer_OtherPathReturns400(t *testing.T) {
	port := freePort(t)
	s := New(fmt.Sprintf("127.0.0.1:%d", port), time.Minute, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/whatever", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
