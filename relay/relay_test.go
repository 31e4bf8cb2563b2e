package relay_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/browsermesh/internal/testutil"
	"github.com/hupe1980/browsermesh/protocol"
	"github.com/hupe1980/browsermesh/relay"
)

// wsClient is a bare frame-level client so the tests exercise the relay
// without going through the controller package.
type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialWS(t *testing.T, url string) *wsClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "dial relay")
	t.Cleanup(func() { _ = ws.Close() })
	return &wsClient{t: t, ws: ws}
}

func (c *wsClient) sendRaw(raw []byte) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, raw))
}

func (c *wsClient) send(env protocol.Envelope) {
	c.t.Helper()
	raw, err := env.Encode()
	require.NoError(c.t, err)
	c.sendRaw(raw)
}

func (c *wsClient) recv() protocol.Envelope {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := c.ws.ReadMessage()
	require.NoError(c.t, err, "read frame")
	env, err := protocol.Decode(raw)
	require.NoError(c.t, err, "decode frame")
	return env
}

// recvByID skips unsolicited status pushes until the reply for id arrives.
func (c *wsClient) recvByID(id string) protocol.Envelope {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		env := c.recv()
		if env.ID() == id {
			return env
		}
	}
	c.t.Fatalf("no envelope with id %q within 10 frames", id)
	return nil
}

func (c *wsClient) hello(role protocol.Role) {
	c.t.Helper()
	c.send(protocol.Hello(role))
	ack := c.recv()
	require.True(c.t, ack.OK(), "hello ack: %v", ack)
	require.Equal(c.t, string(role), ack["role"])
}

func TestRelay_StatusWithoutHandshake(t *testing.T) {
	_, url := testutil.StartRelay(t)
	c := dialWS(t, url)

	c.send(protocol.StatusQuery())
	st, ok := c.recv().StatusFlags()
	require.True(t, ok)
	require.False(t, st.AdapterConnected)
	require.False(t, st.ControllerConnected)
}

func TestRelay_PingWithoutPeerOrRole(t *testing.T) {
	_, url := testutil.StartRelay(t)
	c := dialWS(t, url)

	c.send(protocol.Command("p1", protocol.CmdPing, nil))
	reply := c.recv()
	require.True(t, reply.OK())
	require.Equal(t, "p1", reply.ID())
	require.Equal(t, "pong", reply["data"])
}

func TestRelay_InvalidJSONIsNotFatal(t *testing.T) {
	_, url := testutil.StartRelay(t)
	c := dialWS(t, url)

	c.sendRaw([]byte("{{not json"))
	reply := c.recv()
	require.False(t, reply.OK())
	require.Equal(t, "invalid_json", reply.ErrorText())

	// The connection survives protocol errors.
	c.send(protocol.Command("p2", protocol.CmdPing, nil))
	require.True(t, c.recv().OK())
}

func TestRelay_UnknownHelloRoleFallsThroughToRouting(t *testing.T) {
	_, url := testutil.StartRelay(t)
	c := dialWS(t, url)

	// An unrecognized role is not a handshake; the envelope is routed like
	// any other and fails because no role is assigned yet.
	c.send(protocol.Envelope{"type": "hello", "role": "observer"})
	reply := c.recv()
	require.False(t, reply.OK())
	require.Equal(t, "role_not_set", reply.ErrorText())
	_, hasID := reply["id"]
	require.False(t, hasID, "the envelope carried no id, so none is echoed")

	// A valid hello on the same connection still completes.
	c.hello(protocol.RoleController)
}

func TestRelay_RouteBeforeHello(t *testing.T) {
	_, url := testutil.StartRelay(t)
	c := dialWS(t, url)

	c.send(protocol.Command("x1", "navigate", map[string]any{"url": "https://example.com"}))
	reply := c.recv()
	require.False(t, reply.OK())
	require.Equal(t, "role_not_set", reply.ErrorText())
	require.Equal(t, "x1", reply.ID())
}

func TestRelay_RouteWithoutPeer(t *testing.T) {
	_, url := testutil.StartRelay(t)
	c := dialWS(t, url)
	c.hello(protocol.RoleController)

	c.send(protocol.Command("x1", "query", map[string]any{"selector": "#a"}))
	reply := c.recvByID("x1")
	require.False(t, reply.OK())
	require.Equal(t, "peer_not_connected", reply.ErrorText())
}

func TestRelay_HelloUpdatesStatusAndBroadcasts(t *testing.T) {
	_, url := testutil.StartRelay(t)

	ctrl := dialWS(t, url)
	ctrl.hello(protocol.RoleController)

	// The controller's own hello triggers a broadcast to controllers.
	st, ok := ctrl.recv().StatusFlags()
	require.True(t, ok)
	require.True(t, st.ControllerConnected)
	require.False(t, st.AdapterConnected)

	adapter := dialWS(t, url)
	adapter.hello(protocol.RoleAdapter)

	// The adapter joining is pushed to the controller without polling.
	st, ok = ctrl.recv().StatusFlags()
	require.True(t, ok)
	require.True(t, st.AdapterConnected)
	require.True(t, st.ControllerConnected)
}

func TestRelay_ForwardRoundTrip(t *testing.T) {
	_, url := testutil.StartRelay(t)

	ctrl := dialWS(t, url)
	ctrl.hello(protocol.RoleController)

	adapter := dialWS(t, url)
	adapter.hello(protocol.RoleAdapter)

	ctrl.send(protocol.Command("x1", "query", map[string]any{"selector": "#a"}))

	// The adapter receives the envelope unmodified.
	fwd := adapter.recvByID("x1")
	require.Equal(t, "query", fwd.Cmd())
	require.Equal(t, map[string]any{"selector": "#a"}, fwd["args"])

	// No local acknowledgment reaches the sender; the adapter's reply is
	// the next x1 frame the controller sees.
	adapter.send(protocol.Envelope{"id": "x1", "ok": true, "data": map[string]any{"results": []any{"hi"}}})
	reply := ctrl.recvByID("x1")
	require.True(t, reply.OK())
	require.Equal(t, map[string]any{"results": []any{"hi"}}, reply["data"])
}

func TestRelay_LastHelloWinsEndToEnd(t *testing.T) {
	_, url := testutil.StartRelay(t)

	ctrl := dialWS(t, url)
	ctrl.hello(protocol.RoleController)

	adapterA := dialWS(t, url)
	adapterA.hello(protocol.RoleAdapter)
	adapterB := dialWS(t, url)
	adapterB.hello(protocol.RoleAdapter)

	ctrl.send(protocol.Command("x1", "screenshot", nil))
	fwd := adapterB.recvByID("x1")
	require.Equal(t, "screenshot", fwd.Cmd())

	// Adapter A must not receive routed traffic anymore; a ping from A
	// still answers, proving the connection itself stays usable.
	adapterA.send(protocol.Command("pa", protocol.CmdPing, nil))
	require.Equal(t, "pong", adapterA.recvByID("pa")["data"])
}

func TestRelay_DisconnectClearsAndBroadcasts(t *testing.T) {
	srv, url := testutil.StartRelay(t)

	ctrl := dialWS(t, url)
	ctrl.hello(protocol.RoleController)
	_ = ctrl.recv() // own-hello broadcast

	adapter := dialWS(t, url)
	adapter.hello(protocol.RoleAdapter)
	st, _ := ctrl.recv().StatusFlags()
	require.True(t, st.AdapterConnected)

	require.NoError(t, adapter.ws.Close())

	// The teardown is pushed to the controller.
	st, ok := ctrl.recv().StatusFlags()
	require.True(t, ok)
	require.False(t, st.AdapterConnected)
	require.True(t, st.ControllerConnected)

	// And a fresh poll agrees immediately.
	require.Eventually(t, func() bool {
		return !srv.Registry().Snapshot().AdapterConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_MetricsExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, url := testutil.StartRelay(t, func(o *relay.Options) { o.Registerer = reg })

	ctrl := dialWS(t, url)
	ctrl.hello(protocol.RoleController)
	adapter := dialWS(t, url)
	adapter.hello(protocol.RoleAdapter)

	ctrl.send(protocol.Command("x1", "query", map[string]any{"selector": "#a"}))
	fwd := adapter.recvByID("x1")
	require.Equal(t, "query", fwd.Cmd())

	// Frames on one connection are handled sequentially, so this ping reply
	// orders the forward accounting above before the scrape below.
	ctrl.send(protocol.Command("p1", protocol.CmdPing, nil))
	require.True(t, ctrl.recvByID("p1").OK())

	httpURL := "http" + strings.TrimPrefix(url, "ws")
	resp, err := http.Get(httpURL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), "browsermesh_relay_messages_total")
	require.Contains(t, string(body), `outcome="local"`)
	require.Contains(t, string(body), `outcome="forwarded"`)
	require.Contains(t, string(body), "browsermesh_relay_connections")
}
