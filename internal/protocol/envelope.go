// Package protocol implements the wire codec for the channel broker.
//
// Every frame exchanged over the broker's WebSocket endpoint is a single
// JSON object, an Envelope. The codec is strict about the required "type"
// discriminator but permissive about unknown top-level keys, so older and
// newer clients can coexist on the same channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the envelope discriminator.
type Type string

const (
	TypeJoin            Type = "join"
	TypeMessage         Type = "message"
	TypeProgressUpdate  Type = "progress_update"
	TypeSystem          Type = "system"
	TypeError           Type = "error"
)

// ClientType is the self-declared, untrusted role a connection announces
// on join. It is a metrics hint only; routing never gates on it.
type ClientType string

const (
	ClientController ClientType = "controller"
	ClientExecutor   ClientType = "executor"
	ClientUnknown    ClientType = "unknown"
)

// ErrorKind is the closed taxonomy used in InnerMessage.Error.Kind (spec §7).
type ErrorKind string

const (
	ErrBadRequest       ErrorKind = "bad_request"
	ErrNotJoined        ErrorKind = "not_joined"
	ErrTimeout          ErrorKind = "timeout"
	ErrConnectionClosed ErrorKind = "connection_closed"
	ErrUnauthenticated  ErrorKind = "unauthenticated"
	ErrUpstream         ErrorKind = "upstream"
	ErrInternal         ErrorKind = "internal"
	ErrShutdown         ErrorKind = "shutdown"
	ErrProtocol         ErrorKind = "protocol_error"
)

// MaxFrameSize is the largest text frame the codec accepts before the
// connection is closed with a protocol error (spec §4.1).
const MaxFrameSize = 16 << 20 // 16 MiB

// ErrorPayload is the structured error body carried in InnerMessage.Error and
// in top-level "error" envelopes.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`  // set for ErrUpstream
	Excerpt string    `json:"excerpt,omitempty"` // set for ErrUpstream
}

func (e *ErrorPayload) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InnerMessage is the application payload nested under Envelope.Message.
// Exactly one of the three roles below applies to a given instance:
//   - request:  ID + Command set, Result/Error absent
//   - response: ID set, exactly one of Result/Error set
//   - progress: ID set, Data set
type InnerMessage struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsRequest reports whether m carries an unanswered request.
func (m *InnerMessage) IsRequest() bool {
	return m != nil && m.Command != "" && len(m.Result) == 0 && m.Error == nil
}

// IsResponse reports whether m carries a request's outcome.
func (m *InnerMessage) IsResponse() bool {
	return m != nil && m.ID != "" && (len(m.Result) > 0 || m.Error != nil)
}

// Envelope is the outer JSON object carried on the wire (spec §3, §6).
type Envelope struct {
	Type       Type          `json:"type"`
	Channel    string        `json:"channel,omitempty"`
	ID         string        `json:"id,omitempty"`
	ClientType ClientType    `json:"clientType,omitempty"`
	Message    *InnerMessage `json:"message,omitempty"`
}

// Parse decodes a single text frame into an Envelope. It rejects frames
// with a missing or unrecognized "type" field; unknown top-level keys are
// tolerated for forward compatibility.
func Parse(raw []byte) (*Envelope, error) {
	if len(raw) > MaxFrameSize {
		return nil, &ErrorPayload{Kind: ErrProtocol, Message: "frame exceeds maximum size"}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ErrorPayload{Kind: ErrBadRequest, Message: "malformed envelope: " + err.Error()}
	}

	switch env.Type {
	case TypeJoin, TypeMessage, TypeProgressUpdate, TypeSystem, TypeError:
	case "":
		return nil, &ErrorPayload{Kind: ErrBadRequest, Message: "missing type"}
	default:
		return nil, &ErrorPayload{Kind: ErrBadRequest, Message: "unknown type: " + string(env.Type)}
	}

	if env.ClientType == "" {
		env.ClientType = ClientUnknown
	}

	return &env, nil
}

// Encode is the inverse of Parse; together they form a pure round-trip for
// every envelope the router accepts (spec §8).
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("protocol: nil envelope")
	}
	return json.Marshal(env)
}

// System builds a "system" envelope, used for joins acks and notices.
func System(channel, id, text string) *Envelope {
	var msg *InnerMessage
	if text != "" {
		msg = &InnerMessage{Data: json.RawMessage(strconvQuote(text))}
	}
	return &Envelope{Type: TypeSystem, Channel: channel, ID: id, Message: msg}
}

// ErrorEnvelope builds a transport-level "error" envelope (diagnostic only,
// never forwarded to other channel members per spec §6).
func ErrorEnvelope(id string, kind ErrorKind, message string) *Envelope {
	return &Envelope{
		Type: TypeError,
		ID:   id,
		Message: &InnerMessage{
			Error: &ErrorPayload{Kind: kind, Message: message},
		},
	}
}

// Reply builds the envelope shape every local-command response uses:
// {type: "message", id: envelopeID, message: {id: requestID, result|error}}
// (spec §4.6), so controller-side code treats local and remote replies
// identically.
func Reply(envelopeID, requestID string, result json.RawMessage, errPayload *ErrorPayload) *Envelope {
	return &Envelope{
		Type: TypeMessage,
		ID:   envelopeID,
		Message: &InnerMessage{
			ID:     requestID,
			Result: result,
			Error:  errPayload,
		},
	}
}

func strconvQuote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
