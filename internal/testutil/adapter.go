package testutil

import (
	"testing"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/browsermesh/protocol"
)

// AdapterHandler produces the reply for one routed envelope. Returning nil
// swallows the envelope, which lets tests simulate an adapter that never
// answers.
type AdapterHandler func(env protocol.Envelope) protocol.Envelope

// EchoOK answers every envelope with {"id":..,"ok":true,"data":data}.
func EchoOK(data any) AdapterHandler {
	return func(env protocol.Envelope) protocol.Envelope {
		return protocol.Envelope{"id": env.ID(), "ok": true, "data": data}
	}
}

// Silent swallows every envelope, so controller-side waits run into their
// deadline.
func Silent() AdapterHandler {
	return func(protocol.Envelope) protocol.Envelope { return nil }
}

// Adapter is a scripted fake adapter endpoint: it dials the relay, performs
// the adapter hello and answers routed commands through its handler.
type Adapter struct {
	ws   *websocket.Conn
	done chan struct{}
}

// ConnectAdapter dials url, announces the adapter role, waits for the
// acknowledgment and starts serving handle in the background. The adapter is
// closed with the test.
func ConnectAdapter(t *testing.T, url string, handle AdapterHandler) *Adapter {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("adapter dial failed: %v", err)
	}

	raw, err := protocol.Hello(protocol.RoleAdapter).Encode()
	if err != nil {
		t.Fatalf("adapter hello encode failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("adapter hello send failed: %v", err)
	}
	if _, ack, err := ws.ReadMessage(); err != nil {
		t.Fatalf("adapter hello ack failed: %v", err)
	} else if env, err := protocol.Decode(ack); err != nil || !env.OK() {
		t.Fatalf("adapter hello rejected: %s", ack)
	}

	a := &Adapter{ws: ws, done: make(chan struct{})}
	go a.serve(handle)
	t.Cleanup(a.Close)
	return a
}

func (a *Adapter) serve(handle AdapterHandler) {
	defer close(a.done)
	for {
		_, raw, err := a.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			continue
		}
		if env.ID() == "" {
			continue // status push or other control traffic
		}
		resp := handle(env)
		if resp == nil {
			continue
		}
		out, err := resp.Encode()
		if err != nil {
			continue
		}
		if err := a.ws.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// Send pushes an arbitrary envelope from the adapter side, e.g. a stale
// reply for interleaving tests.
func (a *Adapter) Send(t *testing.T, env protocol.Envelope) {
	t.Helper()
	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("adapter send encode failed: %v", err)
	}
	if err := a.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("adapter send failed: %v", err)
	}
}

// Close tears down the transport and waits for the serve loop to exit.
func (a *Adapter) Close() {
	_ = a.ws.Close()
	<-a.done
}
