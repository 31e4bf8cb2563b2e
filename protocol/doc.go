// Package protocol defines the wire contract spoken over the relay: the
// Envelope message unit, the two peer roles, the derived status view and the
// error codes the relay answers locally. It has no dependencies on other
// browsermesh packages so the relay, the controller client and test fakes can
// all share it.
//
// Every frame on the wire is a single UTF-8 JSON object. Two disjoint shapes
// matter to the relay:
//
//   - Control envelopes carry "type" ("hello" or "status").
//   - Routable envelopes carry "id" (opaque correlation token) and "cmd"
//     (opaque command string) plus an "args" payload. The relay never
//     interprets command semantics; it only routes and correlates them.
package protocol
