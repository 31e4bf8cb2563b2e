// Package relay implements the rendezvous point that pairs exactly one
// adapter endpoint with exactly one controller endpoint and forwards opaque
// JSON envelopes between them.
//
// The Server accepts WebSocket connections and runs one receive loop per
// connection. Each inbound envelope is classified in a fixed precedence
// order: malformed JSON, hello handshake, status query, ping, then generic
// routing to the peer of the opposite role. Control envelopes are answered
// locally; routable envelopes are forwarded verbatim, and the sender's own
// correlation layer waits for the peer's reply.
//
// The Registry is the only shared mutable state between connection
// goroutines. It holds at most one connection per role with last-hello-wins
// eviction, and its mutex is never held across network I/O. All state is in
// memory; a restarted relay starts empty.
package relay
