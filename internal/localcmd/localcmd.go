// Package localcmd implements the broker's own local command handlers
// (spec §4.6): channel introspection, diagnostics, and the REST-API-backed
// comment/reaction/config/notification tools, each registered onto a
// *router.Router via RegisterLocal. Grounded on the teacher's command
// handler table (ws/internal/shared/handlers_message.go), generalized to
// the router.LocalHandler signature.
package localcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/figbridge/channelbroker/internal/channels"
	"github.com/figbridge/channelbroker/internal/connection"
	"github.com/figbridge/channelbroker/internal/diagnostics"
	"github.com/figbridge/channelbroker/internal/protocol"
	"github.com/figbridge/channelbroker/internal/restapi"
	"github.com/figbridge/channelbroker/internal/router"
)

// Register wires every local command onto r.
func Register(r *router.Router, reg *channels.Registry, diag *diagnostics.Collector, rest *restapi.Client) {
	r.RegisterLocal("get_active_channels", getActiveChannels(reg))
	r.RegisterLocal("connection_diagnostics", connectionDiagnostics(diag, reg))

	r.RegisterLocal("get_comments", getComments(rest))
	r.RegisterLocal("post_comment", postComment(rest))
	r.RegisterLocal("reply_to_comment", replyToComment(rest))
	r.RegisterLocal("post_reaction", postReaction(rest))
	r.RegisterLocal("get_reactions", getReactions(rest))
	r.RegisterLocal("delete_reaction", deleteReaction(rest))
	r.RegisterLocal("get_config", getConfig(rest))
	r.RegisterLocal("set_config", setConfig(rest))
	r.RegisterLocal("send_notification", sendNotification())
}

// getActiveChannels is idempotent and side-effect-free (spec §4.6, §8).
func getActiveChannels(reg *channels.Registry) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		active := reg.ActiveChannels()
		summary := fmt.Sprintf("Active channels (%d): ", len(active))
		for i, cc := range active {
			if i > 0 {
				summary += ", "
			}
			summary += cc.Name
		}
		result, err := json.Marshal(summary)
		if err != nil {
			return nil, &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: err.Error()}
		}
		return result, nil
	}
}

func connectionDiagnostics(diag *diagnostics.Collector, reg *channels.Registry) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		snap := diag.Snapshot(reg)
		result, err := json.Marshal(snap)
		if err != nil {
			return nil, &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: err.Error()}
		}
		return result, nil
	}
}

// decodeParams unmarshals a request's params into out, the per-command
// parameter struct: the usual tool parameters plus, for REST-backed
// commands, an optional fileKey (spec §4.6). Empty params leave out as is.
func decodeParams(req *protocol.InnerMessage, out any) *protocol.ErrorPayload {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return &protocol.ErrorPayload{Kind: protocol.ErrBadRequest, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func encodeResult(v any) (json.RawMessage, *protocol.ErrorPayload) {
	result, err := json.Marshal(v)
	if err != nil {
		return nil, &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: err.Error()}
	}
	return result, nil
}

type commentParams struct {
	FileKey   string `json:"fileKey"`
	NodeID    string `json:"nodeId"`
	Message   string `json:"message"`
	CommentID string `json:"commentId"`
}

func getComments(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p commentParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		var out any
		if errPayload := rest.Do(ctx, "GET", fmt.Sprintf("/files/%s/comments", rest.FileKey(p.FileKey)), nil, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

func postComment(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p commentParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		body := map[string]any{"message": p.Message, "node_id": p.NodeID}
		var out any
		if errPayload := rest.Do(ctx, "POST", fmt.Sprintf("/files/%s/comments", rest.FileKey(p.FileKey)), body, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

func replyToComment(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p commentParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		body := map[string]any{"message": p.Message, "comment_id": p.CommentID}
		var out any
		path := fmt.Sprintf("/files/%s/comments/%s", rest.FileKey(p.FileKey), p.CommentID)
		if errPayload := rest.Do(ctx, "POST", path, body, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

type reactionParams struct {
	FileKey    string `json:"fileKey"`
	CommentID  string `json:"commentId"`
	Emoji      string `json:"emoji"`
	ReactionID string `json:"reactionId"`
}

func postReaction(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p reactionParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		body := map[string]any{"emoji": p.Emoji}
		var out any
		path := fmt.Sprintf("/files/%s/comments/%s/reactions", rest.FileKey(p.FileKey), p.CommentID)
		if errPayload := rest.Do(ctx, "POST", path, body, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

func getReactions(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p reactionParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		var out any
		path := fmt.Sprintf("/files/%s/comments/%s/reactions", rest.FileKey(p.FileKey), p.CommentID)
		if errPayload := rest.Do(ctx, "GET", path, nil, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

func deleteReaction(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p reactionParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		path := fmt.Sprintf("/files/%s/comments/%s/reactions/%s", rest.FileKey(p.FileKey), p.CommentID, p.ReactionID)
		if errPayload := rest.Do(ctx, "DELETE", path, nil, nil); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(map[string]bool{"deleted": true})
	}
}

type configParams struct {
	FileKey string          `json:"fileKey"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
}

func getConfig(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p configParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		var out any
		path := fmt.Sprintf("/files/%s/config/%s", rest.FileKey(p.FileKey), p.Key)
		if errPayload := rest.Do(ctx, "GET", path, nil, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

func setConfig(rest *restapi.Client) router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p configParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}
		body := map[string]any{"value": p.Value}
		var out any
		path := fmt.Sprintf("/files/%s/config/%s", rest.FileKey(p.FileKey), p.Key)
		if errPayload := rest.Do(ctx, "PUT", path, body, &out); errPayload != nil {
			return nil, errPayload
		}
		return encodeResult(out)
	}
}

type notificationParams struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// sendNotification surfaces a desktop notification via the host shell,
// returning success once the shell accepts the request (spec §4.6). On
// platforms without a known notifier, it reports an internal error rather
// than silently no-oping.
func sendNotification() router.LocalHandler {
	return func(ctx context.Context, conn *connection.Connection, channel string, req *protocol.InnerMessage) (json.RawMessage, *protocol.ErrorPayload) {
		var p notificationParams
		if errPayload := decodeParams(req, &p); errPayload != nil {
			return nil, errPayload
		}

		cmd, err := notifyCommand(ctx, p.Title, p.Message)
		if err != nil {
			return nil, &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: err.Error()}
		}
		if err := cmd.Run(); err != nil {
			return nil, &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: "notifier: " + err.Error()}
		}
		return encodeResult(map[string]bool{"sent": true})
	}
}

func notifyCommand(ctx context.Context, title, message string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		return exec.CommandContext(ctx, "osascript", "-e", script), nil
	case "linux":
		return exec.CommandContext(ctx, "notify-send", title, message), nil
	default:
		return nil, fmt.Errorf("no desktop notifier known for %s", runtime.GOOS)
	}
}
