package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Streamer produces a reply fragment by fragment for a session
type Streamer interface {
	Stream(ctx context.Context, sessionID, prompt string, emit func(fragment string) error) (string, error)
}

// Hub maintains the set of active clients
type Hub struct {
	// Registered clients, keyed by connection ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	chat      Streamer
	upgrader  websocket.Upgrader
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub. allowedOrigins empty or containing "*"
// accepts every origin.
func NewHub(chat Streamer, allowedOrigins []string, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       chat,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		validator: NewMessageValidator(),
		logger:    logger,
	}
}

// Run starts the hub's main loop. When ctx is done every client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("client_id", client.id),
				zap.String("session_id", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.cancel()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("client_id", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.cancel()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id        string
	sessionID string

	// ctx lives as long as the connection; cancelling it aborts generation
	ctx    context.Context
	cancel context.CancelFunc

	// set while a prompt is being answered
	busy atomic.Bool

	logger *zap.Logger
}

// HandleWebSocket upgrades the request and binds the connection to sessionID
func HandleWebSocket(hub *Hub, c echo.Context, sessionID string, logger *zap.Logger) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		id:        id,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With(zap.String("client_id", id), zap.String("session_id", sessionID)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			c.enqueue(NewErrorMessage(ErrorCodeInvalidMessage, "only text messages are supported"))
			continue
		}

		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// processMessage processes one incoming text message
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		code := ErrorCodeInvalidMessage
		var validationErr *entities.ValidationError
		if errors.As(err, &validationErr) {
			code = ErrorCodeInvalidPrompt
		}
		c.enqueue(NewErrorMessage(code, err.Error()))
		return
	}

	switch m := msg.(type) {
	case *PromptMessage:
		if !c.busy.CompareAndSwap(false, true) {
			c.enqueue(NewErrorMessage(ErrorCodeBusy, "a reply is already being generated"))
			return
		}
		go func() {
			defer c.busy.Store(false)
			c.answer(m.Prompt)
		}()
	case *PingMessage:
		c.enqueue(NewPongMessage(m))
	}
}

// answer streams the reply to prompt as fragment messages followed by done
func (c *Client) answer(prompt string) {
	fragments := 0
	reply, err := c.hub.chat.Stream(c.ctx, c.sessionID, prompt, func(fragment string) error {
		if err := c.enqueue(NewFragmentMessage(c.sessionID, fragments, fragment)); err != nil {
			return err
		}
		fragments++
		return nil
	})

	switch {
	case err == nil:
		c.enqueue(NewDoneMessage(c.sessionID, reply, fragments))
	case errors.Is(err, entities.ErrTransport):
		c.logger.Info("Reply abandoned, connection closed", zap.Int("fragments", fragments))
	case errors.Is(err, entities.ErrModelUnavailable):
		c.enqueue(NewErrorMessage(ErrorCodeModelUnavailable, "Model not available"))
	default:
		var validationErr *entities.ValidationError
		var generationErr *entities.GenerationError
		switch {
		case errors.As(err, &validationErr):
			c.enqueue(NewErrorMessage(ErrorCodeInvalidPrompt, validationErr.Error()))
		case errors.As(err, &generationErr):
			c.enqueue(NewErrorMessage(ErrorCodeGenerationFailed, "The model failed to generate a reply"))
		default:
			c.logger.Error("Failed to answer prompt", zap.Error(err))
			c.enqueue(NewErrorMessage(ErrorCodeInternal, "Internal error"))
		}
	}
}

// enqueue marshals msg and queues it for the write pump
func (c *Client) enqueue(msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return err
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-c.ctx.Done():
		return entities.ErrTransport
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}

	origins := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		origins[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}
