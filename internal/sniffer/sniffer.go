// Package sniffer implements the deprecated SSE migration endpoint
// (spec §4.8): a short-lived HTTP listener on the legacy port that tells
// any remaining SSE client to move to the stdio transport, fires a
// one-shot callback on first contact, then stops listening. Grounded on
// the teacher's listener lifecycle (ws/internal/shared/server.go's
// Start/Shutdown), generalized to a single bounded-window HTTP surface
// instead of a long-lived server.
package sniffer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// migration describes the transport change reported to a legacy client.
type migration struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type errorBody struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Migration migration `json:"migration"`
}

var body = errorBody{
	Error:   "upgrade_required",
	Message: "The SSE transport has been retired; connect over MCP stdio instead.",
	Migration: migration{
		From: "http://127.0.0.1:3056/sse",
		To:   "stdio (see the installed MCP stdio server path)",
	},
}

// Sniffer is a one-shot, bounded-window HTTP listener.
type Sniffer struct {
	addr   string
	window time.Duration
	logger zerolog.Logger
	onHit  func()

	mu       sync.Mutex
	listener net.Listener
	fired    bool
}

// New constructs a Sniffer bound to addr (host:port). onHit is called
// exactly once, the first time any request is observed.
func New(addr string, window time.Duration, logger zerolog.Logger, onHit func()) *Sniffer {
	return &Sniffer{addr: addr, window: window, logger: logger, onHit: onHit}
}

// Run binds the listener and serves until the bounded window elapses, a
// request is observed, or ctx is cancelled. Port-in-use errors are logged
// and treated as non-fatal (spec §4.8).
func (s *Sniffer) Run(ctx context.Context) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Warn().Err(err).Str("addr", s.addr).Msg("sniffer: listen failed, skipping")
		return
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{Handler: http.HandlerFunc(s.handle)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ln)
	}()

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-done:
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
}

func (s *Sniffer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	alreadyFired := s.fired
	s.fired = true
	s.mu.Unlock()

	if r.URL.Path == "/sse" {
		w.Header().Set("Upgrade", "stdio")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUpgradeRequired)
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = json.NewEncoder(w).Encode(body)

	if !alreadyFired && s.onHit != nil {
		s.onHit()
	}

	go s.stop()
}

func (s *Sniffer) stop() {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}
