package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/browsermesh/controller"
	"github.com/hupe1980/browsermesh/internal/testutil"
	"github.com/hupe1980/browsermesh/protocol"
)

func dialController(t *testing.T, url string) *controller.Client {
	t.Helper()
	client, err := controller.Dial(context.Background(), url)
	require.NoError(t, err, "controller dial")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_SendAndAwaitRoundTrip(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)
	testutil.ConnectAdapter(t, url, testutil.EchoOK(map[string]any{"results": []any{"ok"}}))

	reply, err := client.SendAndAwait(context.Background(), protocol.Command("x1", "query", map[string]any{"selector": "#a"}), 2*time.Second)
	require.NoError(t, err)
	require.True(t, reply.OK())
	require.Equal(t, "x1", reply.ID())
	require.Equal(t, map[string]any{"results": []any{"ok"}}, reply["data"])
}

func TestClient_SendAndAwaitRequiresID(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)

	_, err := client.SendAndAwait(context.Background(), protocol.Envelope{"cmd": "query"}, time.Second)
	require.ErrorIs(t, err, controller.ErrMissingID)
}

func TestClient_SendAndAwaitTimeout(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)
	testutil.ConnectAdapter(t, url, testutil.Silent())

	start := time.Now()
	_, err := client.SendAndAwait(context.Background(), protocol.Command("x1", "screenshot", nil), 300*time.Millisecond)
	require.ErrorIs(t, err, controller.ErrReplyTimeout)
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestClient_SendAndAwaitDiscardsInterleavedTraffic(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)

	adapter := testutil.ConnectAdapter(t, url, func(env protocol.Envelope) protocol.Envelope {
		if env.ID() != "x3" {
			return nil
		}
		return protocol.Envelope{"id": "x3", "ok": true, "data": "late"}
	})

	// A stale reply for a command that already timed out must not satisfy
	// the wait for x3; neither must an unsolicited status push.
	adapter.Send(t, protocol.Envelope{"id": "x2", "ok": true, "data": "stale"})

	reply, err := client.SendAndAwait(context.Background(), protocol.Command("x3", "query", map[string]any{"selector": "#b"}), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "x3", reply.ID())
	require.Equal(t, "late", reply["data"])
}

func TestClient_SendAndAwaitContextCancel(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)
	testutil.ConnectAdapter(t, url, testutil.Silent())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := client.SendAndAwait(ctx, protocol.Command("x1", "query", nil), 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_Status(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)

	st, err := client.Status(context.Background(), time.Second)
	require.NoError(t, err)
	require.False(t, st.AdapterConnected)
	require.True(t, st.ControllerConnected)

	testutil.ConnectAdapter(t, url, testutil.Silent())

	require.Eventually(t, func() bool {
		st, err := client.Status(context.Background(), time.Second)
		return err == nil && st.AdapterConnected
	}, 2*time.Second, 50*time.Millisecond)
}

func TestClient_AwaitAdapterEventuallyReady(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)

	done := make(chan error, 1)
	go func() {
		done <- client.AwaitAdapter(context.Background(), 3*time.Second, 50*time.Millisecond)
	}()

	time.Sleep(200 * time.Millisecond)
	testutil.ConnectAdapter(t, url, testutil.Silent())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("AwaitAdapter did not return")
	}
}

func TestClient_AwaitAdapterTimeout(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)

	err := client.AwaitAdapter(context.Background(), 300*time.Millisecond, 50*time.Millisecond)
	require.ErrorIs(t, err, controller.ErrAdapterNotConnected)
}

func TestClient_Ping(t *testing.T) {
	_, url := testutil.StartRelay(t)
	client := dialController(t, url)

	// Liveness works with no adapter connected.
	require.NoError(t, client.Ping(context.Background(), time.Second))
}

func TestDial_ToleratesStatusPushBeforeAck(t *testing.T) {
	// A broadcast triggered by another connection's membership change can
	// reach this socket ahead of the hello ack. The handshake must skip it.
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()
		if _, _, err := ws.ReadMessage(); err != nil { // hello
			return
		}
		push, _ := protocol.StatusPush(protocol.Status{ControllerConnected: true}).Encode()
		_ = ws.WriteMessage(websocket.TextMessage, push)
		ack, _ := protocol.HelloAck(protocol.RoleController).Encode()
		_ = ws.WriteMessage(websocket.TextMessage, ack)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(hs.Close)

	client, err := controller.Dial(context.Background(), "ws"+strings.TrimPrefix(hs.URL, "http"))
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestDial_BadURL(t *testing.T) {
	_, err := controller.Dial(context.Background(), "ws://127.0.0.1:1/nope", func(o *controller.Options) {
		o.HandshakeTimeout = 500 * time.Millisecond
	})
	require.Error(t, err)
}
