package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/maumcare/companion/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer. Voice recordings arrive in one frame.
	maxMessageSize = 8 << 20

	// Time allowed to answer one frame
	replyTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	// same-origin policy is enforced by the session cookie, not the upgrader
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients grouped by conversation
type Hub struct {
	// Registered clients per conversation.
	clients map[string]map[*Client]struct{}

	// closed once Run returns; no client is registered afterwards
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	service    *ConversationService
	validator  *protocol.MessageValidator
	pingPeriod time.Duration

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. pingPeriod must be less than the pong wait.
func NewHub(service *ConversationService, pingPeriod time.Duration, logger *zap.Logger) *Hub {
	if pingPeriod <= 0 || pingPeriod >= pongWait {
		pingPeriod = (pongWait * 9) / 10
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		done:       make(chan struct{}),
		service:    service,
		validator:  protocol.NewMessageValidator(),
		pingPeriod: pingPeriod,
		logger:     logger,
	}
}

// Run blocks until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for _, group := range h.clients {
		for client := range group {
			close(client.send)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.logger.Info("Hub stopped")
}

func (h *Hub) register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}

	group, ok := h.clients[client.conversationID]
	if !ok {
		group = make(map[*Client]struct{})
		h.clients[client.conversationID] = group
	}
	group[client] = struct{}{}
	h.logger.Info("Client registered", zap.String("conversationID", client.conversationID))
	return true
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.clients[client.conversationID]
	if !ok {
		return
	}
	if _, ok := group[client]; ok {
		delete(group, client)
		close(client.send)
		h.logger.Info("Client unregistered", zap.String("conversationID", client.conversationID))
	}
	if len(group) == 0 {
		delete(h.clients, client.conversationID)
	}
}

// Connections returns the number of clients attached to a conversation
func (h *Hub) Connections(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[conversationID])
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	conversationID string

	logger *zap.Logger
}

// ServeConversation upgrades the request and attaches the connection to a conversation
func (h *Hub) ServeConversation(c echo.Context, conversationID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return nil
	}

	client := &Client{
		hub:            h,
		conn:           conn,
		send:           make(chan []byte, 256),
		conversationID: conversationID,
		logger:         h.logger.With(zap.String("conversationID", conversationID)),
	}

	if !h.register(client) {
		conn.Close()
		return nil
	}
	client.enqueue(protocol.NewConnectionEstablished())

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps frames from the websocket connection and answers them in order.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unsupported frame", zap.Int("type", messageType))
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// going away reads as a normal close on the client
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage answers one client frame
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if errors.Is(err, protocol.ErrUnsupportedType) {
		c.logger.Debug("Ignoring frame", zap.Error(err))
		return
	}
	if err != nil {
		c.logger.Warn("Invalid frame", zap.Error(err))
		c.enqueue(protocol.NewErrorMessage(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	switch m := msg.(type) {
	case *protocol.PingMessage:
		c.enqueue(protocol.NewPongMessage())

	case *protocol.TextMessage:
		reply, err := c.hub.service.ProcessText(ctx, c.conversationID, m.Message, "text", m.VoiceID, m.GenerateVoice)
		c.respond(reply, err)

	case *protocol.VoiceMessage:
		reply, err := c.hub.service.ProcessVoice(ctx, c.conversationID, m.AudioData, m.VoiceID)
		c.respond(reply, err)

	default:
		if msg.MessageType() == protocol.MessageTypeVoiceData {
			c.enqueue(&protocol.BaseMessage{Type: protocol.MessageTypeVoiceChunkReceived})
		}
	}
}

func (c *Client) respond(reply *Reply, err error) {
	if err != nil {
		c.logger.Error("Failed to process message", zap.Error(err))
		c.enqueue(protocol.NewErrorMessage(err.Error()))
		return
	}
	c.enqueue(protocol.NewAssistantResponse(protocol.AssistantMessage{
		ID:        reply.Assistant.ID,
		Content:   reply.Assistant.Content,
		VoiceURL:  reply.VoiceURL,
		CreatedAt: reply.Assistant.CreatedAt,
	}))
}

// enqueue queues a frame for the write pump; frames for a slow client are dropped
func (c *Client) enqueue(frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to encode frame", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.conversationID][c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping frame")
	}
}
