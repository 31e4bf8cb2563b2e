package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/browsermesh/logging"
	"github.com/hupe1980/browsermesh/protocol"
)

var (
	// ErrReplyTimeout is returned when no reply carrying the awaited id
	// arrives before the deadline.
	ErrReplyTimeout = fmt.Errorf("reply timeout")
	// ErrAdapterNotConnected is returned when the adapter does not come up
	// within the readiness polling deadline.
	ErrAdapterNotConnected = fmt.Errorf("adapter not connected")
	// ErrMissingID rejects routable envelopes without a correlation id;
	// without one, no reply could ever be matched.
	ErrMissingID = fmt.Errorf("envelope has no correlation id")
)

// Options configures the controller client.
type Options struct {
	// HandshakeTimeout bounds the dial plus hello acknowledgment.
	HandshakeTimeout time.Duration
	// PollInterval is the default pause between status polls in
	// AwaitAdapter.
	PollInterval time.Duration
	// Logger receives correlation events, notably discarded traffic.
	Logger logging.Logger
}

// Client is a connected controller session.
type Client struct {
	ws     *websocket.Conn
	logger logging.Logger
	poll   time.Duration

	frames chan []byte

	mu      sync.Mutex
	readErr error
}

// Dial connects to the relay, announces the controller role and waits for
// the acknowledgment before returning a usable client.
func Dial(ctx context.Context, url string, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		HandshakeTimeout: 10 * time.Second,
		PollInterval:     300 * time.Millisecond,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		ws:     ws,
		logger: opts.Logger,
		poll:   opts.PollInterval,
		frames: make(chan []byte, 16),
	}

	if err := c.write(protocol.Hello(protocol.RoleController)); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	ack, err := c.readHandshake(opts.HandshakeTimeout)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("await hello ack: %w", err)
	}
	if !ack.OK() {
		_ = ws.Close()
		return nil, fmt.Errorf("hello rejected: %s", ack.ErrorText())
	}

	go c.readLoop()
	return c, nil
}

// Close tears down the transport session.
func (c *Client) Close() error { return c.ws.Close() }

// SendAndAwait sends a routable envelope (which must carry a non-empty id)
// and waits until a reply with the same id arrives or the deadline elapses.
// Non-matching traffic is discarded, not buffered.
func (c *Client) SendAndAwait(ctx context.Context, env protocol.Envelope, timeout time.Duration) (protocol.Envelope, error) {
	id := env.ID()
	if id == "" {
		return nil, ErrMissingID
	}
	if err := c.write(env); err != nil {
		return nil, fmt.Errorf("send envelope: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: no reply for id %q within %s", ErrReplyTimeout, id, timeout)
		case raw, ok := <-c.frames:
			if !ok {
				return nil, fmt.Errorf("read reply: %w", c.readError())
			}
			reply, err := protocol.Decode(raw)
			if err != nil {
				c.logger.Debug("discarding undecodable frame", "error", err)
				continue
			}
			if reply.ID() != id {
				c.logger.Debug("discarding non-matching envelope", "want", id, "got", reply.ID())
				continue
			}
			return reply, nil
		}
	}
}

// Status sends a status query and waits for the relay's occupancy view.
func (c *Client) Status(ctx context.Context, timeout time.Duration) (protocol.Status, error) {
	if err := c.write(protocol.StatusQuery()); err != nil {
		return protocol.Status{}, fmt.Errorf("send status query: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return protocol.Status{}, ctx.Err()
		case <-timer.C:
			return protocol.Status{}, fmt.Errorf("%w: no status reply within %s", ErrReplyTimeout, timeout)
		case raw, ok := <-c.frames:
			if !ok {
				return protocol.Status{}, fmt.Errorf("read status: %w", c.readError())
			}
			env, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			if st, ok := env.StatusFlags(); ok {
				return st, nil
			}
			c.logger.Debug("discarding non-status envelope", "got", env.ID())
		}
	}
}

// AwaitAdapter polls relay status until the adapter side is connected or the
// deadline elapses. The adapter connects asynchronously and possibly after
// the controller, so callers must not assume readiness at startup. A zero or
// negative pollInterval falls back to the configured default.
func (c *Client) AwaitAdapter(ctx context.Context, timeout, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = c.poll
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err := c.Status(ctx, pollInterval)
		if err == nil && st.AdapterConnected {
			return nil
		}
		if err != nil && !errors.Is(err, ErrReplyTimeout) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrAdapterNotConnected, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Ping round-trips a liveness probe through the relay. It succeeds without
// any peer connected and without a completed handshake.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	id := uuid.NewString()[:8]
	reply, err := c.SendAndAwait(ctx, protocol.Command(id, protocol.CmdPing, nil), timeout)
	if err != nil {
		return err
	}
	if !reply.OK() {
		return fmt.Errorf("ping rejected: %s", reply.ErrorText())
	}
	return nil
}

func (c *Client) write(env protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// readHandshake reads the hello acknowledgment before the background read
// loop takes over the connection. A status push broadcast for another
// connection's membership change can arrive ahead of the ack; such frames
// are skipped, not mistaken for a rejection.
func (c *Client) readHandshake(timeout time.Duration) (protocol.Envelope, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			return nil, err
		}
		if env.Type() == protocol.TypeStatus {
			continue
		}
		if err := c.ws.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
		return env, nil
	}
}

// readLoop is the single reader of the transport. It hands frames to the
// waiting call; if no call is waiting the channel buffers them until the
// next wait discards or consumes them.
func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		c.frames <- raw
	}
}

func (c *Client) readError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		return fmt.Errorf("connection closed")
	}
	return c.readErr
}
