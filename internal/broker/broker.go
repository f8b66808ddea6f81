// Package broker wires every collaborator package into the top-level
// channel-broker process (spec §3, §5): configuration, logging, metrics,
// rate limiting, the pending-request table, the channel registry, the
// connection manager, the router, the local-command handlers, the
// migration sniffer, and the ambient metrics/health HTTP surface.
// Grounded on the teacher's top-level Server (ws/internal/shared/server.go):
// same accept-loop-plus-HTTP-mux-plus-bounded-drain shape, generalized
// from a pub/sub relay to a channel-broker router.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/figbridge/channelbroker/internal/channels"
	"github.com/figbridge/channelbroker/internal/config"
	"github.com/figbridge/channelbroker/internal/connection"
	"github.com/figbridge/channelbroker/internal/diagnostics"
	"github.com/figbridge/channelbroker/internal/localcmd"
	"github.com/figbridge/channelbroker/internal/metrics"
	"github.com/figbridge/channelbroker/internal/protocol"
	"github.com/figbridge/channelbroker/internal/ratelimit"
	"github.com/figbridge/channelbroker/internal/restapi"
	"github.com/figbridge/channelbroker/internal/router"
	"github.com/figbridge/channelbroker/internal/sniffer"
)

// Server is the broker process: a WebSocket channel relay plus its ambient
// metrics/health surface and the legacy SSE migration sniffer.
type Server struct {
	cfg    config.Config
	logger zerolog.Logger

	metrics    *metrics.Registry
	registry   *channels.Registry
	acceptRate *ratelimit.Limiter
	restRate   *ratelimit.Limiter
	rest       *restapi.Client
	diag       *diagnostics.Collector
	rtr        *router.Router
	conns      *connection.Manager
	sniff      *sniffer.Sniffer

	httpSrv *http.Server
}

// New constructs every collaborator and wires the local command table.
// notifyMigration is called once if a legacy SSE client is observed; pass
// nil if the shell has no dialog to show.
func New(cfg config.Config, logger zerolog.Logger, notifyMigration func()) *Server {
	m := metrics.NewRegistry()
	reg := channels.New()

	acceptRate := ratelimit.New(ratelimit.Config{
		KeyBurst:    cfg.AcceptBurst,
		KeyRate:     cfg.AcceptRate,
		GlobalBurst: cfg.AcceptBurst * 4,
		GlobalRate:  cfg.AcceptRate * 4,
	})
	restRate := ratelimit.New(ratelimit.Config{
		KeyBurst:    cfg.RESTBurst,
		KeyRate:     cfg.RESTRatePerSec,
		GlobalBurst: cfg.RESTBurst * 4,
		GlobalRate:  cfg.RESTRatePerSec * 4,
	})

	rest := restapi.New(cfg.RESTBaseURL, cfg.RESTTimeout, restRate, restapi.Credentials{
		AccessToken:    cfg.AccessToken,
		RefreshToken:   cfg.RefreshToken,
		DefaultFileKey: cfg.DefaultFileKey,
	})
	diag := diagnostics.New(cfg.BrokerPort)

	rtr := router.New(logger, reg, m)
	localcmd.Register(rtr, reg, diag, rest)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		registry:   reg,
		acceptRate: acceptRate,
		restRate:   restRate,
		rest:       rest,
		diag:       diag,
		rtr:        rtr,
	}

	s.conns = connection.New(logger, connection.Config{
		QueueSize:  cfg.OutboundQueueSize,
		MaxFrame:   cfg.MaxFrameSize,
		AcceptRate: acceptRate,
	}, s.dispatch, s.onClose)

	s.sniff = sniffer.New(
		addr(cfg.BrokerHost, cfg.SnifferPort),
		cfg.SnifferWindow,
		logger,
		notifyMigration,
	)

	return s
}

func (s *Server) dispatch(conn *connection.Connection, env *protocol.Envelope) {
	s.rtr.Dispatch(context.Background(), conn, env)
}

func (s *Server) onClose(conn *connection.Connection, reason connection.CloseReason) {
	s.rtr.OnDisconnect(conn)
	s.metrics.ActiveConnections.Dec()
	s.metrics.ActiveChannels.Set(float64(s.registry.Count()))
	if reason == connection.CloseProtocolError {
		s.metrics.ProtocolErrors.Inc()
	}
	s.logger.Debug().Str("conn", conn.ID()).Str("reason", string(reason)).Msg("connection closed")
}

// Start binds the WebSocket listener, the metrics/health HTTP mux, and the
// SSE migration sniffer, then returns; everything runs in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.conns.Start(ctx, addr(s.cfg.BrokerHost, s.cfg.BrokerPort)); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.httpSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics http server error")
		}
	}()

	go s.sniff.Run(ctx)

	s.logger.Info().
		Str("broker_addr", addr(s.cfg.BrokerHost, s.cfg.BrokerPort)).
		Str("metrics_addr", s.cfg.MetricsAddr).
		Int("sniffer_port", s.cfg.SnifferPort).
		Msg("broker started")

	return nil
}

// Shutdown stops accepting new work and drains existing connections within
// a bounded deadline (spec §5), modeled on the teacher's grace-period
// drain loop (ws/internal/shared/server.go's Shutdown).
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("shutting down broker")

	s.conns.Stop()
	s.rtr.Stop()
	s.acceptRate.Stop()
	s.restRate.Stop()

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownDrain)
		defer cancel()
		_ = s.httpSrv.Shutdown(ctx)
	}

	return nil
}

func addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
