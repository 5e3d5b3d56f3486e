package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/jwt"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Replier sends a frame to the calling connection only.
type Replier interface {
	Reply(event string, data any)
}

// EventHandler is the realtime logic behind the socket. HandleEvent runs
// sequentially per connection; a returned error becomes an error frame.
type EventHandler interface {
	Connect(ctx context.Context, sub ports.Subscriber, identity user.Identity) (contracts.AuthSuccess, error)
	Disconnect(ctx context.Context, connID string)
	HandleEvent(ctx context.Context, s ports.Session, reply Replier, in contracts.InboundFrame) error
}

// Options tunes the transport.
type Options struct {
	AuthTimeout     time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
	AllowedOrigins  []string
}

// OptionsFrom reads Options from the [websocket] section.
func OptionsFrom(cfg config.WebSocketConfig) Options {
	return Options{
		AuthTimeout:     cfg.AuthTimeout.Duration,
		PongWait:        cfg.PongWait.Duration,
		PingInterval:    cfg.PingInterval.Duration,
		WriteWait:       cfg.WriteWait.Duration,
		MaxMessageBytes: cfg.MaxMessageBytes,
		SendBuffer:      cfg.SendBuffer,
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
		AllowedOrigins:  cfg.AllowedOrigins,
	}
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 1
	}
	return o
}

var errRateLimited = apperr.Validation("rate limit exceeded")

// WebSocket accepts realtime connections with JWT auth.
type WebSocket struct {
	logger   *logger.Logger
	jwtMgr   *jwt.Manager
	handler  EventHandler
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*Conn
	closing  bool
	sessions sync.WaitGroup // one per tracked conn, done after Disconnect
}

// NewWebSocket creates the websocket endpoint.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager, handler EventHandler, opts Options) *WebSocket {
	ws := &WebSocket{
		logger:  logger,
		jwtMgr:  jwtMgr,
		handler: handler,
		opts:    opts.withDefaults(),
		conns:   make(map[string]*Conn),
	}
	ws.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ws.checkOrigin,
	}
	return ws
}

// Connect upgrades the request, authenticates the caller and serves the
// connection until either side closes it.
func (ws *WebSocket) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1) Upgrade HTTP -> WS
	raw, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(ctx, "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer raw.Close()
	raw.SetReadLimit(ws.opts.MaxMessageBytes)

	// 2) Authenticate from the upgrade request or the first frame
	identity, err := ws.authenticate(r, raw)
	if err != nil {
		ws.logger.Warn(ctx, "ws_auth_failed", "Rejected websocket handshake", map[string]any{"reason": err.Error()})
		ws.writeAuthError(raw, authErrorText(err))
		ws.writeClose(raw, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	conn := newConn(uuid.NewString(), raw, ws.opts)
	ctx = logger.WithConnID(logger.WithUserID(ctx, identity.ID), conn.id)

	if !ws.track(conn) {
		ws.writeClose(raw, websocket.CloseGoingAway, shutdownReason)
		return
	}
	defer ws.untrack(conn.id)

	// 3) Writer owns the socket from here on
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.writePump(ctx, ws.logger)
	}()

	// 4) Register with the realtime layer
	ack, err := ws.handler.Connect(ctx, conn, identity)
	if err != nil {
		ws.logger.Error(ctx, "ws_register_failed", "Failed to register connection", err, nil)
		conn.Reply(contracts.EventAuthError, map[string]any{"error": apperr.Message(err)})
		conn.shutdown()
		<-writerDone
		return
	}
	conn.Reply(contracts.EventAuthSuccess, ack)

	// teardown: stop deliveries, leave every group, wait for the writer
	defer func() {
		conn.shutdown()
		ws.handler.Disconnect(ctx, conn.id)
		<-writerDone
	}()

	// 5) Read loop
	ws.readLoop(ctx, conn, ports.Session{ConnID: conn.id, User: identity})
}

// Shutdown refuses new sessions and closes the open ones with 1001. It returns
// once every session has run Disconnect, or when ctx ends.
func (ws *WebSocket) Shutdown(ctx context.Context) error {
	ws.mu.Lock()
	ws.closing = true
	open := make([]*Conn, 0, len(ws.conns))
	for _, c := range ws.conns {
		open = append(open, c)
	}
	ws.mu.Unlock()

	for _, c := range open {
		c.closeWith(websocket.CloseGoingAway, shutdownReason)
	}

	done := make(chan struct{})
	go func() {
		ws.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		ws.logger.Info(ctx, "ws_shutdown_complete", "Closed all websocket sessions", map[string]any{"sessions": len(open)})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers conn unless Shutdown already started.
func (ws *WebSocket) track(conn *Conn) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closing {
		return false
	}
	ws.conns[conn.id] = conn
	ws.sessions.Add(1)
	return true
}

func (ws *WebSocket) untrack(connID string) {
	ws.mu.Lock()
	delete(ws.conns, connID)
	ws.mu.Unlock()
	ws.sessions.Done()
}

func (ws *WebSocket) authenticate(r *http.Request, raw *websocket.Conn) (user.Identity, error) {
	if token, err := jwt.FromAuthorization(r); err == nil {
		res, err := jwt.ValidateRaw(token, ws.jwtMgr)
		if err != nil {
			return user.Identity{}, err
		}
		return res.Identity, nil
	}

	if err := raw.SetReadDeadline(time.Now().Add(ws.opts.AuthTimeout)); err != nil {
		return user.Identity{}, err
	}
	mt, first, err := raw.ReadMessage()
	if err != nil {
		return user.Identity{}, errAuthTimeout
	}
	if mt != websocket.TextMessage {
		return user.Identity{}, errAuthNotText
	}

	res, err := jwt.ValidateWSAuth(first, ws.jwtMgr)
	if err != nil {
		return user.Identity{}, err
	}
	return res.Identity, nil
}

func (ws *WebSocket) readLoop(ctx context.Context, conn *Conn, s ports.Session) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(ws.opts.PongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(ws.opts.PongWait))
	})

	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				ws.logger.Warn(ctx, "ws_unexpected_close", "Connection closed unexpectedly", map[string]any{"reason": err.Error()})
			} else {
				ws.logger.Info(ctx, "ws_connection_closed", "Connection closed", nil)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(ws.opts.PongWait))

		var in contracts.InboundFrame
		if err := json.Unmarshal(payload, &in); err != nil || in.Type == "" {
			conn.replyError("", errBadFrame)
			continue
		}
		if !conn.limiter.Allow() {
			conn.replyError(in.Type, errRateLimited)
			continue
		}

		ws.dispatch(ctx, conn, s, in)
	}
}

// dispatch runs one event; a panic is reported to this connection only.
func (ws *WebSocket) dispatch(ctx context.Context, conn *Conn, s ports.Session, in contracts.InboundFrame) {
	defer func() {
		if rec := recover(); rec != nil {
			ws.logger.Error(ctx, "ws_handler_panic", "Event handler panicked", panicError(rec), map[string]any{"event": in.Type})
			conn.replyError(in.Type, errors.New("handler panic"))
		}
	}()

	if err := ws.handler.HandleEvent(ctx, s, conn, in); err != nil {
		if apperr.Code(err) == apperr.CodeInternal {
			ws.logger.Error(ctx, "ws_event_failed", "Event failed", err, map[string]any{"event": in.Type})
		}
		conn.replyError(in.Type, err)
	}
}

func newLimiter(opts Options) *rate.Limiter {
	if opts.EventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, opts.EventBurst)
	}
	return rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.EventBurst)
}
