package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/oshokin/sos-relay/internal/domain/session"
	"github.com/oshokin/sos-relay/internal/logger"
	"github.com/oshokin/sos-relay/internal/protocol"
)

// Dispatcher abstracts the relay coordinator the transport feeds into.
type Dispatcher interface {
	Connect(ctx context.Context, sessionID string)
	Disconnect(ctx context.Context, sessionID string)
	Dispatch(ctx context.Context, sessionID string, env *protocol.Envelope)
}

// Options tunes the websocket transport.
type Options struct {
	// EventsPerSecond is the per-session inbound rate limit.
	EventsPerSecond float64
	// EventBurst is the per-session inbound burst allowance.
	EventBurst int
	// WriteTimeout bounds a single outbound write.
	WriteTimeout time.Duration
	// OriginPatterns whitelists browser origins; empty means same-origin only.
	OriginPatterns []string
}

const (
	// outboundQueueSize bounds the per-session outbound queue. A session
	// that cannot drain it is dropped rather than allowed to stall fan-out.
	outboundQueueSize = 64

	// defaultWriteTimeout bounds a single write when no timeout is configured.
	defaultWriteTimeout = 5 * time.Second
)

// Server accepts websocket connections, owns one session per connection,
// and implements fire-and-forget delivery for the coordinator.
type Server struct {
	// dispatcher receives session lifecycle events and inbound envelopes.
	dispatcher Dispatcher
	// opts holds the transport tunables.
	opts Options

	// mu protects the connection map.
	mu sync.RWMutex
	// conns maps session id to its live connection.
	conns map[string]*clientConn
}

// clientConn is one live websocket session.
type clientConn struct {
	// id is the session id.
	id string
	// sock is the underlying websocket.
	sock *websocket.Conn
	// out is the bounded outbound queue drained by the writer goroutine.
	out chan *protocol.Envelope
	// limiter throttles inbound events for this session.
	limiter *rate.Limiter
	// ctx is the connection-scoped context.
	ctx context.Context //nolint:containedctx // Scopes the connection's goroutines and timers.
	// cancel tears down the connection's goroutines.
	cancel context.CancelFunc
	// closeOnce guarantees cleanup runs exactly once.
	closeOnce sync.Once
}

// NewServer creates a transport with the provided tunables.
func NewServer(opts *Options) *Server {
	resolved := Options{}
	if opts != nil {
		resolved = *opts
	}

	if resolved.WriteTimeout <= 0 {
		resolved.WriteTimeout = defaultWriteTimeout
	}

	return &Server{
		opts:  resolved,
		conns: make(map[string]*clientConn),
	}
}

// SetDispatcher wires the coordinator in. Must be called before Handle;
// the setter exists because the coordinator needs the server as its Sender.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Handle upgrades the request to a websocket and runs the session until
// the client disconnects or is dropped.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	acceptOptions := &websocket.AcceptOptions{}
	if len(s.opts.OriginPatterns) > 0 {
		acceptOptions.OriginPatterns = s.opts.OriginPatterns
	}

	sock, err := websocket.Accept(w, r, acceptOptions)
	if err != nil {
		return
	}

	sessionID := session.NewID()
	ctx, cancel := context.WithCancel(r.Context())
	ctx = logger.WithKV(ctx, "session_id", sessionID)

	conn := &clientConn{
		id:      sessionID,
		sock:    sock,
		out:     make(chan *protocol.Envelope, outboundQueueSize),
		limiter: s.newLimiter(),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.mu.Lock()
	s.conns[sessionID] = conn
	s.mu.Unlock()

	s.dispatcher.Connect(ctx, sessionID)

	go s.writeLoop(conn)
	s.readLoop(conn)

	s.drop(conn, websocket.StatusNormalClosure, "closed")
}

// Send enqueues the envelope for the session. Unknown sessions are ignored;
// a session whose queue is full is dropped, since a stalled consumer must
// not hold up fan-out to everyone else.
func (s *Server) Send(sessionID string, env *protocol.Envelope) {
	s.mu.RLock()
	conn, ok := s.conns[sessionID]
	s.mu.RUnlock()

	if !ok {
		return
	}

	select {
	case conn.out <- env:
	default:
		logger.WarnKV(conn.ctx, "Outbound queue full, dropping session", "type", env.Type)

		// Send is called from inside a dispatch cycle, so the teardown
		// must not call back into the dispatcher on this goroutine.
		go s.drop(conn, websocket.StatusPolicyViolation, "slow_consumer")
	}
}

// readLoop decodes inbound envelopes and feeds the dispatcher until the
// connection fails or is torn down.
func (s *Server) readLoop(conn *clientConn) {
	for {
		var env protocol.Envelope

		if err := wsjson.Read(conn.ctx, conn.sock, &env); err != nil {
			return
		}

		if !conn.limiter.Allow() {
			logger.WarnKV(conn.ctx, "Inbound rate limit exceeded", "type", env.Type)
			s.rejectRateLimited(conn)

			continue
		}

		s.dispatcher.Dispatch(conn.ctx, conn.id, &env)
	}
}

// writeLoop drains the outbound queue onto the socket.
func (s *Server) writeLoop(conn *clientConn) {
	for {
		select {
		case <-conn.ctx.Done():
			return
		case env := <-conn.out:
			writeCtx, cancelWrite := context.WithTimeout(conn.ctx, s.opts.WriteTimeout)
			err := wsjson.Write(writeCtx, conn.sock, env)

			cancelWrite()

			if err != nil {
				s.drop(conn, websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// rejectRateLimited answers an over-limit event with an error envelope,
// bypassing the dispatcher entirely.
func (s *Server) rejectRateLimited(conn *clientConn) {
	env, err := protocol.NewEnvelope(protocol.KindError, &protocol.ErrorMessage{
		Message: "rate limit exceeded",
	})
	if err != nil {
		return
	}

	select {
	case conn.out <- env:
	default:
	}
}

// drop tears the session down exactly once: deregisters it, notifies the
// dispatcher, cancels the connection context, and closes the socket.
func (s *Server) drop(conn *clientConn, code websocket.StatusCode, reason string) {
	conn.closeOnce.Do(func() {
		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()

		s.dispatcher.Disconnect(conn.ctx, conn.id)
		conn.cancel()

		_ = conn.sock.Close(code, reason)
	})
}

// newLimiter builds the per-session inbound limiter, falling back to an
// unlimited limiter when rate limiting is not configured.
func (s *Server) newLimiter() *rate.Limiter {
	if s.opts.EventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	burst := s.opts.EventBurst
	if burst <= 0 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(s.opts.EventsPerSecond), burst)
}
