// Package transport implements the realtime conversation connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
	"github.com/maumcare/companion/internal/protocol"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultDialTimeout  = 10 * time.Second
	defaultMaxFrameSize = 4 << 20

	sendBufferSize = 16
)

var (
	// ErrNotOpen is returned by Send when the connection is not open
	ErrNotOpen = errors.New("transport is not open")
	// ErrAlreadyOpen is returned by Open while a connection is active
	ErrAlreadyOpen = errors.New("transport already open")
	// ErrSendBufferFull is returned when the writer cannot keep up
	ErrSendBufferFull = errors.New("transport send buffer full")
)

// Config configures a WebSocketTransport
type Config struct {
	// BaseURL is the ws:// or wss:// origin of the backend
	BaseURL *url.URL
	// Header is sent with every handshake (CSRF token, bearer token, ...)
	Header http.Header
	// Jar supplies the session cookies for the handshake
	Jar http.CookieJar

	PingInterval time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	MaxFrameSize int64
	Reconnect    ReconnectPolicy
}

// WebSocketTransport owns the websocket of one conversation. It sends a JSON
// ping every PingInterval while open and reconnects according to its policy.
type WebSocketTransport struct {
	cfg     Config
	dialer  *websocket.Dialer
	handler repositories.TransportHandler
	logger  *zap.Logger

	mu             sync.Mutex
	state          entities.TransportState
	conn           *connection
	conversationID string
	ctx            context.Context
	cancel         context.CancelFunc

	wg sync.WaitGroup
}

var _ repositories.Transport = (*WebSocketTransport)(nil)

// connection is a single websocket with its writer goroutine
type connection struct {
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		ws:         ws,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewWebSocketTransport creates a transport. The handler receives every connection event.
func NewWebSocketTransport(cfg Config, handler repositories.TransportHandler, logger *zap.Logger) (*WebSocketTransport, error) {
	if cfg.BaseURL == nil {
		return nil, errors.New("transport base URL is required")
	}
	if cfg.BaseURL.Scheme != "ws" && cfg.BaseURL.Scheme != "wss" {
		return nil, fmt.Errorf("transport base URL must be ws or wss, got %q", cfg.BaseURL.Scheme)
	}
	if handler == nil {
		return nil, errors.New("transport handler is required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteWait
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = defaultMaxFrameSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebSocketTransport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
			Jar:              cfg.Jar,
		},
		handler: handler,
		logger:  logger.With(zap.String("component", "transport")),
		state:   entities.TransportClosed,
	}, nil
}

// URL returns the websocket endpoint of a conversation
func (t *WebSocketTransport) URL(conversationID string) string {
	u := *t.cfg.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/conversations/" + url.PathEscape(conversationID) + "/"
	return u.String()
}

// State returns the current connection state
func (t *WebSocketTransport) State() entities.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsOpen reports whether Send may be called
func (t *WebSocketTransport) IsOpen() bool {
	return t.State() == entities.TransportOpen
}

func (t *WebSocketTransport) setState(state entities.TransportState) {
	t.mu.Lock()
	prev := t.state
	t.state = state
	t.mu.Unlock()

	if prev != state {
		t.logger.Debug("Transport state changed",
			zap.String("from", prev.String()),
			zap.String("to", state.String()))
	}
}

// Open connects to the conversation. A failed dial reports OnError and OnClose and returns the error.
func (t *WebSocketTransport) Open(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	if t.state != entities.TransportClosed {
		t.mu.Unlock()
		return ErrAlreadyOpen
	}
	t.state = entities.TransportConnecting
	t.conversationID = conversationID
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	ws, err := t.dial(ctx)
	if err != nil {
		t.logger.Error("WebSocket connection failed",
			zap.String("conversationID", conversationID),
			zap.Error(err))
		t.release()
		t.setState(entities.TransportErroring)
		t.handler.OnError(err)
		t.setState(entities.TransportClosed)
		t.handler.OnClose(err)
		return err
	}

	c := t.attach(ws)
	t.logger.Info("WebSocket connection established", zap.String("conversationID", conversationID))
	t.handler.OnOpen()

	t.wg.Add(1)
	go t.run(c)
	return nil
}

// Send writes one frame. It fails with ErrNotOpen unless the state is Open.
func (t *WebSocketTransport) Send(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != entities.TransportOpen || t.conn == nil {
		return ErrNotOpen
	}

	select {
	case <-t.conn.done:
		return ErrNotOpen
	default:
	}

	select {
	case t.conn.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down without reconnecting and waits for OnClose to be delivered.
// It must not be called from a handler callback.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	c := t.conn
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if c != nil {
		c.close()
	}
	t.wg.Wait()
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := t.URL(t.conversationID)
	ws, resp, err := t.dialer.DialContext(ctx, endpoint, t.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	ws.SetReadLimit(t.cfg.MaxFrameSize)
	return ws, nil
}

func (t *WebSocketTransport) attach(ws *websocket.Conn) *connection {
	c := newConnection(ws)
	t.mu.Lock()
	t.conn = c
	t.state = entities.TransportOpen
	t.mu.Unlock()
	return c
}

// release cancels the lifetime context and forgets the connection
func (t *WebSocketTransport) release() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.conn = nil
	t.mu.Unlock()
}

func (t *WebSocketTransport) closing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx == nil || t.ctx.Err() != nil
}

// run serves connections until a close is requested, the server closes normally
// or reconnection gives up
func (t *WebSocketTransport) run(c *connection) {
	defer t.wg.Done()

	// attempts spent since the last connection that stayed up long enough
	spent := 0
	for {
		connectedAt := time.Now()
		err := t.serve(c)

		if t.closing() {
			t.logger.Info("WebSocket connection closed", zap.String("conversationID", t.conversationID))
			t.release()
			t.setState(entities.TransportClosed)
			t.handler.OnClose(nil)
			return
		}

		if isNormalClose(err) {
			t.logger.Info("WebSocket closed by server", zap.Error(err))
			t.release()
			t.setState(entities.TransportClosed)
			t.handler.OnClose(err)
			return
		}

		t.logger.Error("WebSocket error", zap.Error(err))
		t.setState(entities.TransportErroring)
		t.handler.OnError(err)

		if !t.cfg.Reconnect.Enabled() {
			t.release()
			t.setState(entities.TransportClosed)
			t.handler.OnClose(err)
			return
		}

		if time.Since(connectedAt) >= t.cfg.Reconnect.stableAfter() {
			spent = 0
		}
		remaining := t.cfg.Reconnect.MaxAttempts - spent
		if remaining <= 0 {
			t.logger.Error("Reconnection gave up", zap.Int("attempts", spent))
			t.release()
			t.setState(entities.TransportClosed)
			t.handler.OnClose(fmt.Errorf("reconnect attempts exhausted: %w", err))
			return
		}

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		t.setState(entities.TransportConnecting)

		ws, used, rerr := t.redial(remaining)
		spent += used
		if rerr != nil {
			requested := t.closing()
			t.release()
			t.setState(entities.TransportClosed)
			if requested {
				t.handler.OnClose(nil)
			} else {
				t.logger.Error("Reconnection gave up", zap.Error(rerr))
				t.handler.OnClose(rerr)
			}
			return
		}

		c = t.attach(ws)
		t.logger.Info("WebSocket reconnected",
			zap.String("conversationID", t.conversationID),
			zap.Int("attempts", spent))
		t.handler.OnOpen()
	}
}

// serve pumps frames of one connection to the handler and returns the read error that ended it
func (t *WebSocketTransport) serve(c *connection) error {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	go t.writePump(ctx, c)

	defer func() {
		c.close()
		<-c.writerDone
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		in, err := protocol.Decode(data)
		if err != nil {
			t.logger.Debug("Ignoring malformed frame", zap.Error(err))
			continue
		}
		t.handler.OnMessage(in)
	}
}

// writePump is the only writer of the websocket
func (t *WebSocketTransport) writePump(ctx context.Context, c *connection) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.writerDone)
	}()

	ping, _ := protocol.Encode(protocol.NewPingMessage())

	for {
		select {
		case <-ctx.Done():
			c.close()
			c.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Error("Failed to write message", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, ping); err != nil {
				t.logger.Warn("Failed to send keepalive ping", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
