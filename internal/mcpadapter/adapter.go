package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/figbridge/channelbroker/internal/config"
	"github.com/figbridge/channelbroker/internal/pending"
	"github.com/figbridge/channelbroker/internal/protocol"
)

// Adapter bridges the MCP stdio contract (spec §6) to the broker's
// WebSocket protocol. One Adapter exists per AI client process.
type Adapter struct {
	logger zerolog.Logger

	client  *BrokerClient
	waiters *pending.Table

	mu       sync.Mutex
	channels map[string]bool
}

// New constructs an Adapter and its broker client, but does not connect.
func New(cfg config.MCPConfig, logger zerolog.Logger) *Adapter {
	a := &Adapter{
		logger:   logger,
		channels: make(map[string]bool),
	}
	a.waiters = pending.New(pending.Options{
		DefaultTimeout: cfg.RequestTimeout,
		ProgressExtend: 60 * time.Second,
	})
	a.client = NewBrokerClient(cfg.BrokerURL, cfg.ReconnectBackoff, logger, a.handleInbound)
	return a
}

// MCPServer builds the mark3labs/mcp-go server wired to this adapter's
// catalog and dispatch logic (spec §4.7 step 1, step 3).
func (a *Adapter) MCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		"figbridge-channel-broker",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
	)

	for _, t := range Tools {
		tool := t
		s.AddTool(buildMCPTool(tool), a.callToolHandler(tool))
	}
	for _, p := range Prompts {
		prompt := p
		s.AddPrompt(mcp.NewPrompt(prompt.Name, mcp.WithPromptDescription(prompt.Description)), a.getPromptHandler(prompt))
	}

	return s
}

func buildMCPTool(t ToolSpec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		var paramOpts []mcp.PropertyOption
		if p.Description != "" {
			paramOpts = append(paramOpts, mcp.Description(p.Description))
		}
		if p.Required {
			paramOpts = append(paramOpts, mcp.Required())
		}
		switch p.Type {
		case "number":
			opts = append(opts, mcp.WithNumber(p.Name, paramOpts...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(p.Name, paramOpts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, paramOpts...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func (a *Adapter) getPromptHandler(p PromptSpec) server.PromptHandlerFunc {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: p.Description,
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleAssistant, Content: mcp.TextContent{Type: "text", Text: p.Text}},
			},
		}, nil
	}
}

// callToolHandler returns the MCP tool handler for one catalog entry
// (spec §4.7 step 4).
func (a *Adapter) callToolHandler(t ToolSpec) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		if t.Name == "join_channel" {
			return a.handleJoinChannel(ctx, args)
		}

		if !t.NoChannelRequired && !a.anyChannelJoined() {
			return mcp.NewToolResultError("not_joined: no channel has been joined yet"), nil
		}

		params := canonicalize(t.Name, args)
		return a.forwardToolCall(ctx, t.Name, params)
	}
}

func (a *Adapter) handleJoinChannel(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	channel, _ := args["channel"].(string)
	if channel == "" {
		return mcp.NewToolResultError("bad_request: channel is required"), nil
	}

	envID := uuid.NewString()
	w, err := a.waiters.Register(envID, "join")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := a.client.Send(ctx, &protocol.Envelope{
		Type:       protocol.TypeJoin,
		Channel:    channel,
		ID:         envID,
		ClientType: protocol.ClientController,
	}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("internal: %v", err)), nil
	}

	var outcome pending.Outcome
	select {
	case <-ctx.Done():
		a.waiters.Reject(envID, &protocol.ErrorPayload{Kind: protocol.ErrShutdown, Message: "tool call cancelled"})
		return mcp.NewToolResultError("cancelled"), nil
	case outcome = <-waitCh(w):
	}
	if outcome.Err != nil {
		return mcp.NewToolResultError(outcome.Err.Error()), nil
	}

	a.mu.Lock()
	a.channels[channel] = true
	a.mu.Unlock()

	return mcp.NewToolResultText(fmt.Sprintf("joined %s", channel)), nil
}

func (a *Adapter) forwardToolCall(ctx context.Context, command string, params map[string]any) (*mcp.CallToolResult, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("internal: %v", err)), nil
	}

	reqID := uuid.NewString()
	envID := uuid.NewString()
	w, err := a.waiters.Register(reqID, command)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := a.client.Send(ctx, &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Channel: a.primaryChannel(),
		ID:      envID,
		Message: &protocol.InnerMessage{ID: reqID, Command: command, Params: paramsJSON},
	}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("internal: %v", err)), nil
	}

	select {
	case <-ctx.Done():
		a.waiters.Reject(reqID, &protocol.ErrorPayload{Kind: protocol.ErrShutdown, Message: "tool call cancelled"})
		return mcp.NewToolResultError("cancelled"), nil
	case outcome := <-waitCh(w):
		if outcome.Err != nil {
			return mcp.NewToolResultError(outcome.Err.Error()), nil
		}
		return mcp.NewToolResultText(string(outcome.Result)), nil
	}
}

// waitCh adapts Waiter.Wait (a blocking call) into a channel so it can be
// selected against ctx.Done() for MCP cancellation (spec §4.7 step 5).
func waitCh(w *pending.Waiter) <-chan pending.Outcome {
	ch := make(chan pending.Outcome, 1)
	go func() { ch <- w.Wait() }()
	return ch
}

func (a *Adapter) anyChannelJoined() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.channels) > 0
}

func (a *Adapter) primaryChannel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.channels {
		return ch
	}
	return ""
}

func (a *Adapter) handleInbound(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSystem:
		if env.ID != "" {
			var text json.RawMessage
			if env.Message != nil {
				text = env.Message.Data
			}
			a.waiters.Resolve(env.ID, text)
		}
	case protocol.TypeMessage:
		if env.Message == nil {
			return
		}
		if env.Message.IsResponse() {
			if env.Message.Error != nil {
				a.waiters.Reject(env.Message.ID, env.Message.Error)
			} else {
				a.waiters.Resolve(env.Message.ID, env.Message.Result)
			}
		}
	case protocol.TypeProgressUpdate:
		if env.Message != nil {
			a.waiters.Extend(env.Message.ID)
		}
	case protocol.TypeError:
		a.logger.Debug().Str("id", env.ID).Msg("broker reported a transport-level error")
	}
}

// Run connects to the broker and blocks serving MCP over stdio until the
// stdio server returns (stdin closes, or the server's own SIGINT/SIGTERM
// handling stops it). ctx governs only the broker connection; cancelling
// it does not stop the stdio server.
func (a *Adapter) Run(ctx context.Context) error {
	go a.client.Run(ctx)
	return server.ServeStdio(a.MCPServer())
}

// Stop tears down the broker connection and rejects every outstanding
// waiter (spec §5: "Broker shutdown rejects all waiters").
func (a *Adapter) Stop() {
	a.client.Stop()
	a.waiters.RejectAll(&protocol.ErrorPayload{Kind: protocol.ErrShutdown, Message: "adapter shutting down"})
	a.waiters.Stop()
}
