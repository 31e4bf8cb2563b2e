package protocol

import (
	"encoding/json"
	"fmt"
)

// Role identifies which side of the relay a connection speaks for.
type Role string

const (
	// RoleUnassigned marks a connection that has not completed the hello
	// handshake yet. Such connections may still query status and ping.
	RoleUnassigned Role = ""
	// RoleAdapter is the peer that executes commands against some external
	// target (a browser, in the reference deployment).
	RoleAdapter Role = "adapter"
	// RoleController is the peer that issues commands and expects
	// correlated replies.
	RoleController Role = "controller"
)

// ParseRole validates a role string from a hello envelope.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdapter, RoleController:
		return Role(s), true
	}
	return RoleUnassigned, false
}

// Opposite returns the role routable envelopes are forwarded to.
func (r Role) Opposite() Role {
	switch r {
	case RoleAdapter:
		return RoleController
	case RoleController:
		return RoleAdapter
	default:
		return RoleUnassigned
	}
}

// ErrorCode enumerates the error replies the relay answers locally. None of
// them is fatal to the connection that triggered it.
type ErrorCode string

const (
	// ErrInvalidJSON reports a frame that is not a JSON object.
	ErrInvalidJSON ErrorCode = "invalid_json"
	// ErrRoleNotSet reports a routable envelope sent before the hello
	// handshake assigned a role.
	ErrRoleNotSet ErrorCode = "role_not_set"
	// ErrPeerNotConnected reports that no peer of the opposite role is
	// registered. This is a normal state, not a protocol violation.
	ErrPeerNotConnected ErrorCode = "peer_not_connected"
	// ErrForwardFailed reports that the send to the registered peer failed.
	// The peer is not assumed dead from this alone.
	ErrForwardFailed ErrorCode = "forward_failed"
)

// Control envelope type tags and the one command the relay answers itself.
const (
	TypeHello  = "hello"
	TypeStatus = "status"
	CmdPing    = "ping"
)

// Status is the derived occupancy view returned by status queries and pushed
// to controllers on membership changes. It is computed on demand, never
// stored.
type Status struct {
	AdapterConnected    bool `json:"adapter_connected"`
	ControllerConnected bool `json:"controller_connected"`
}

// Envelope is one JSON message unit: a mapping of string keys to arbitrary
// JSON values. The relay inspects a handful of well-known keys and otherwise
// treats the content as opaque.
type Envelope map[string]any

// Decode parses raw frame bytes into an Envelope. It fails when the frame is
// not valid JSON or not a JSON object.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("decode envelope: not a JSON object")
	}
	return e, nil
}

// Encode marshals the envelope for transmission.
func (e Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, nil
}

func (e Envelope) str(key string) string {
	s, _ := e[key].(string)
	return s
}

// Type returns the control type tag ("hello", "status") or "".
func (e Envelope) Type() string { return e.str("type") }

// ID returns the correlation id or "".
func (e Envelope) ID() string { return e.str("id") }

// Cmd returns the routable command name or "".
func (e Envelope) Cmd() string { return e.str("cmd") }

// HelloRole returns the validated role carried by a hello envelope.
func (e Envelope) HelloRole() (Role, bool) { return ParseRole(e.str("role")) }

// OK reports the boolean "ok" field; an absent or non-boolean value counts
// as false.
func (e Envelope) OK() bool {
	b, _ := e["ok"].(bool)
	return b
}

// ErrorText returns the "error" field of a failed reply, or "".
func (e Envelope) ErrorText() string { return e.str("error") }

// StatusFlags extracts occupancy flags from a status envelope. The second
// return value is false for any other envelope shape.
func (e Envelope) StatusFlags() (Status, bool) {
	if e.Type() != TypeStatus {
		return Status{}, false
	}
	a, _ := e["adapter_connected"].(bool)
	c, _ := e["controller_connected"].(bool)
	return Status{AdapterConnected: a, ControllerConnected: c}, true
}

// Hello builds the role handshake sent as the first envelope of a session.
func Hello(role Role) Envelope {
	return Envelope{"type": TypeHello, "role": string(role)}
}

// HelloAck acknowledges a successful role assignment.
func HelloAck(role Role) Envelope {
	return Envelope{"ok": true, "role": string(role)}
}

// StatusQuery asks the relay for current occupancy. Permitted in any
// connection state; status polling must not require a handshake.
func StatusQuery() Envelope {
	return Envelope{"type": TypeStatus}
}

// StatusPush renders occupancy as a status envelope.
func StatusPush(s Status) Envelope {
	return Envelope{
		"type":                 TypeStatus,
		"adapter_connected":    s.AdapterConnected,
		"controller_connected": s.ControllerConnected,
	}
}

// Command builds a routable envelope.
func Command(id, cmd string, args map[string]any) Envelope {
	if args == nil {
		args = map[string]any{}
	}
	return Envelope{"id": id, "cmd": cmd, "args": args}
}

// Pong is the local reply to a ping command, echoing its id.
func Pong(id string) Envelope {
	return Envelope{"id": id, "ok": true, "data": "pong"}
}

// ErrorReply builds a local error reply. The id is echoed only when the
// offending envelope carried one.
func ErrorReply(id string, code ErrorCode) Envelope {
	e := Envelope{"ok": false, "error": string(code)}
	if id != "" {
		e["id"] = id
	}
	return e
}
