// Command mcp-stdio runs the MCP stdio adapter (spec §4.7): one long-lived
// process per AI client that bridges MCP tool calls to the broker's
// WebSocket protocol. All logging goes to stderr; stdout is reserved for
// MCP JSON-RPC framing.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/figbridge/channelbroker/internal/config"
	"github.com/figbridge/channelbroker/internal/logging"
	"github.com/figbridge/channelbroker/internal/mcpadapter"
)

func main() {
	cfg, err := config.LoadMCP()
	if err != nil {
		panic(err)
	}

	logger := logging.NewStderr(cfg.ZerologLevel(), false, "mcp-stdio-adapter")

	a := mcpadapter.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		a.Stop()
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("mcp stdio server exited")
	}
}
