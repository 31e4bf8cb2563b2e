package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/browsermesh/logging"
	"github.com/hupe1980/browsermesh/protocol"
)

// Conn is one live transport session. The receive loop that accepted it owns
// the read side exclusively; writes are serialized through send so forwarded
// envelopes and local replies never interleave on the wire.
type Conn struct {
	ws     *websocket.Conn
	remote string

	// role is written by the owning receive loop only (on hello) and read
	// by it on teardown; cross-goroutine visibility is handled by the
	// server roster.
	role protocol.Role

	mu     sync.Mutex
	closed bool
}

// Remote returns the peer address, for diagnostics only.
func (c *Conn) Remote() string { return c.remote }

func (c *Conn) send(env protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	return c.sendRaw(raw)
}

func (c *Conn) sendRaw(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// markClosed flips the connection into its terminal state. It reports
// whether this call was the one that closed it, making teardown idempotent.
func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// Options configures the relay server.
type Options struct {
	// Addr is the host:port the relay listens on.
	Addr string
	// ReadLimit caps inbound frame size in bytes.
	ReadLimit int64
	// Logger receives relay lifecycle and routing events.
	Logger logging.Logger
	// Registerer receives relay metrics. Defaults to a private registry so
	// multiple servers (e.g. in tests) never collide; pass
	// prometheus.DefaultRegisterer to publish into the process default.
	Registerer prometheus.Registerer
}

// Server is the rendezvous point pairing one adapter with one controller and
// forwarding routable envelopes between them. It never interprets command
// semantics.
type Server struct {
	opts     Options
	registry *Registry
	upgrader websocket.Upgrader
	logger   logging.Logger
	metrics  *metrics

	mu    sync.Mutex
	roles map[*Conn]protocol.Role
}

// New constructs a relay server with optional overrides.
func New(optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:       "127.0.0.1:8765",
		ReadLimit:  1 << 20,
		Logger:     logging.NoOpLogger{},
		Registerer: prometheus.NewRegistry(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{
		opts:     opts,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay assumes a single trusted local transport session
			// per role; origin checking is not part of its contract.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  opts.Logger,
		metrics: newMetrics(opts.Registerer),
		roles:   make(map[*Conn]protocol.Role),
	}
}

// Registry exposes the session registry for embedders and tests.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the HTTP handler serving the WebSocket endpoint at "/" and
// Prometheus metrics at "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	if g, ok := s.opts.Registerer.(prometheus.Gatherer); ok {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe runs the relay until ctx is cancelled or the listener
// fails. Cancellation is a clean shutdown and returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("relay listen: %w", err)
	}
	srv := &http.Server{Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("relay listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return nil
	case err := <-errCh:
		return fmt.Errorf("relay serve: %w", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	c := &Conn{ws: ws, remote: ws.RemoteAddr().String()}
	s.track(c)
	s.logger.Info("client connected", "remote", c.remote)
	s.serveConn(c)
}

// serveConn processes inbound envelopes strictly in arrival order until the
// transport closes or fails. Any read error is fatal to this connection
// only.
func (s *Server) serveConn(c *Conn) {
	defer s.teardown(c)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			s.logger.Debug("receive loop ended", "remote", c.remote, "error", err)
			return
		}
		s.handleFrame(c, raw)
	}
}

// handleFrame classifies one inbound envelope. The precedence order is
// fixed: malformed JSON, hello, status, ping, then generic routing. A hello
// must never be misrouted to the peer, and ping must work even when no peer
// is connected.
func (s *Server) handleFrame(c *Conn, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Warn("invalid payload", "remote", c.remote, "error", err)
		s.metrics.message(outcomeError)
		s.reply(c, protocol.ErrorReply("", protocol.ErrInvalidJSON))
		return
	}

	if env.Type() == protocol.TypeHello {
		if role, ok := env.HelloRole(); ok {
			s.metrics.message(outcomeLocal)
			s.handleHello(c, role)
			return
		}
		// A hello with an unrecognized role falls through to routing like
		// any other envelope.
	}

	if env.Type() == protocol.TypeStatus {
		s.metrics.message(outcomeLocal)
		s.reply(c, protocol.StatusPush(s.registry.Snapshot()))
		return
	}

	if env.Cmd() == protocol.CmdPing {
		s.metrics.message(outcomeLocal)
		s.reply(c, protocol.Pong(env.ID()))
		return
	}

	s.route(c, env, raw)
}

// handleHello assigns the announced role, acknowledges it to the sender and
// pushes the new occupancy to every connected controller so observers see
// membership changes promptly.
func (s *Server) handleHello(c *Conn, role protocol.Role) {
	c.role = role
	s.setRole(c, role)
	s.registry.Assign(role, c)
	s.reply(c, protocol.HelloAck(role))
	s.logger.Info("role assigned", "remote", c.remote, "role", string(role))
	s.broadcastStatus()
}

// route forwards a routable envelope verbatim to the peer of the opposite
// role. No local acknowledgment is sent on success; the sender's correlation
// layer waits for the peer's own reply carrying the same id.
func (s *Server) route(c *Conn, env protocol.Envelope, raw []byte) {
	if c.role == protocol.RoleUnassigned {
		s.metrics.message(outcomeError)
		s.reply(c, protocol.ErrorReply(env.ID(), protocol.ErrRoleNotSet))
		return
	}

	peer, ok := s.registry.PeerOf(c.role)
	if !ok {
		s.metrics.message(outcomeError)
		s.reply(c, protocol.ErrorReply(env.ID(), protocol.ErrPeerNotConnected))
		return
	}

	// The peer reference is a point-in-time snapshot. If the peer
	// disconnects mid-send the write fails and the sender is told; only the
	// peer's own receive loop tears its registration down.
	if err := peer.sendRaw(raw); err != nil {
		s.logger.Warn("forward failed", "remote", c.remote, "peer", peer.remote, "error", err)
		s.metrics.message(outcomeError)
		s.reply(c, protocol.ErrorReply(env.ID(), protocol.ErrForwardFailed))
		return
	}
	s.metrics.message(outcomeForwarded)
	s.logger.Debug("forwarded", "id", env.ID(), "cmd", env.Cmd(), "from", string(c.role))
}

func (s *Server) reply(c *Conn, env protocol.Envelope) {
	if err := c.send(env); err != nil {
		s.logger.Warn("reply failed", "remote", c.remote, "error", err)
	}
}

// teardown runs when a receive loop ends. It is idempotent: a second call
// for the same connection is a no-op, so a double-close can never panic or
// corrupt the roster.
func (s *Server) teardown(c *Conn) {
	if !c.markClosed() {
		return
	}
	_ = c.ws.Close()
	s.registry.Clear(c.role, c)
	s.untrack(c)
	s.logger.Info("client disconnected", "remote", c.remote, "role", string(c.role))
	s.broadcastStatus()
}

// broadcastStatus pushes current occupancy to every connected controller,
// not just the sender of the triggering envelope. The roster snapshot is
// taken under the lock; the sends happen outside it.
func (s *Server) broadcastStatus() {
	status := protocol.StatusPush(s.registry.Snapshot())

	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.roles))
	for conn, role := range s.roles {
		if role == protocol.RoleController {
			targets = append(targets, conn)
		}
	}
	s.mu.Unlock()

	for _, conn := range targets {
		if err := conn.send(status); err != nil {
			s.logger.Debug("status push failed", "remote", conn.remote, "error", err)
		}
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.roles[c] = protocol.RoleUnassigned
	s.mu.Unlock()
	s.metrics.connOpened(protocol.RoleUnassigned)
}

func (s *Server) setRole(c *Conn, role protocol.Role) {
	s.mu.Lock()
	prev := s.roles[c]
	s.roles[c] = role
	s.mu.Unlock()
	if prev != role {
		s.metrics.roleChanged(prev, role)
	}
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	role, ok := s.roles[c]
	delete(s.roles, c)
	s.mu.Unlock()
	if ok {
		s.metrics.connClosed(role)
	}
}
