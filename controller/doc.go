// Package controller implements the controller side of the relay: a
// WebSocket client that performs the role handshake on dial and correlates
// command replies by their opaque id.
//
// The protocol is strictly half-duplex per controller: one outstanding
// request at a time. While waiting for a reply, any non-matching arrival is
// either a stale reply or an unsolicited status push, both safe to discard
// for the current call's purpose; the client drops them with a debug log and
// keeps waiting. A Client is therefore not safe for concurrent method calls.
//
// Timeouts are local: a timed-out call stops waiting but does not retract
// the in-flight envelope, so the command may still complete on the adapter
// side with no further observer. Callers wanting a retry must issue a fresh
// envelope with a new id.
package controller
