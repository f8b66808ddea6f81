package broker

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/figbridge/channelbroker/internal/config"
	"github.com/figbridge/channelbroker/internal/logging"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		BrokerHost:            "127.0.0.1",
		BrokerPort:            freePort(t),
		SnifferPort:           freePort(t),
		SnifferWindow:         50 * time.Millisecond,
		MetricsAddr:           "127.0.0.1:" + strconv.Itoa(freePort(t)),
		OutboundQueueSize:     16,
		MaxFrameSize:          1 << 20,
		DefaultRequestTimeout: time.Second,
		ProgressExtension:     2 * time.Second,
		AcceptBurst:           10,
		AcceptRate:            10,
		RESTBaseURL:           "http://127.0.0.1:1",
		RESTTimeout:           time.Second,
		RESTRatePerSec:        5,
		RESTBurst:             5,
		ShutdownDrain:         time.Second,
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	logger := logging.New(logging.Options{Service: "test"})

	s := New(cfg, logger, nil)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Shutdown())
}
