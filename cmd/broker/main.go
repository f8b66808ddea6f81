// Command broker runs the WebSocket channel-broker process: the
// connection manager, router, local-command handlers, and SSE migration
// sniffer described in the package docs of internal/broker. Grounded on
// ws/main.go's startup sequence (automaxprocs, config load, signal-driven
// graceful shutdown).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/figbridge/channelbroker/internal/broker"
	"github.com/figbridge/channelbroker/internal/config"
	"github.com/figbridge/channelbroker/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(logging.Options{
		Level:   cfg.ZerologLevel(),
		Pretty:  cfg.LogFormat != "json",
		Service: "channel-broker",
	})

	s := broker.New(cfg, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start broker")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("received shutdown signal")
	cancel()
	if err := s.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
