package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/logger"
	"github.com/karthikraju391/matchchat/metrics"
	"github.com/karthikraju391/matchchat/models"
	"github.com/karthikraju391/matchchat/nats_service"
)

// Error codes sent back to the client in an error event.
const (
	errInvalidEvent = "invalid_event"
	errUserMismatch = "user_mismatch"
	errNotJoined    = "not_joined"
	errRateLimited  = "rate_limited"
	errJoinFailed   = "join_failed"
	errSendFailed   = "send_failed"
)

const (
	deliveryDeadline = 1 * time.Second
	publishTimeout   = 5 * time.Second
)

// Client is one WebSocket connection. A connection belongs to a single user
// (fixed by its first event) and may hold several rooms at once.
type Client struct {
	Conn        *websocket.Conn
	server      *Server
	ConnID      string
	UserID      string
	MessageChan chan models.ServerEvent // Frames waiting for the writer
	DoneChan    chan struct{}           // Closed when the reader exits

	limiter *rate.Limiter

	mu    sync.Mutex
	rooms map[string]nats_service.Subscription
}

func (s *Server) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		Conn:        conn,
		server:      s,
		ConnID:      uuid.NewString(),
		MessageChan: make(chan models.ServerEvent, 256),
		DoneChan:    make(chan struct{}),
		limiter:     rate.NewLimiter(rate.Limit(s.cfg.SendRate), s.cfg.SendBurst),
		rooms:       make(map[string]nats_service.Subscription),
	}
}

// HandleRead reads frames from the WebSocket connection and dispatches them.
func (c *Client) HandleRead(ctx context.Context) {
	defer func() {
		logger.Debug("ws_reader_closed", "conn", c.ConnID, "user", c.UserID)
		close(c.DoneChan)
	}()
	c.Conn.SetReadLimit(config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws_read_failed", "conn", c.ConnID, "user", c.UserID, "error", err)
			} else {
				logger.Debug("ws_closed", "conn", c.ConnID, "user", c.UserID, "error", err)
			}
			return
		}
		c.handleFrame(ctx, raw)
	}
}

// HandleWrite writes queued frames to the WebSocket connection and keeps it
// alive with pings.
func (c *Client) HandleWrite() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		logger.Debug("ws_writer_closed", "conn", c.ConnID)
	}()

	for {
		select {
		case ev := <-c.MessageChan:
			raw, err := models.EncodeServerEvent(ev)
			if err != nil {
				logger.Error("ws_encode_failed", "conn", c.ConnID, "error", err)
				continue
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.Warn("ws_write_failed", "conn", c.ConnID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("ws_ping_failed", "conn", c.ConnID, "error", err)
				return
			}

		case <-c.DoneChan:
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, raw []byte) {
	ev, err := models.DecodeClientEvent(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, models.ErrUnknownEvent) {
			reason = "unknown_type"
		}
		metrics.EventsRejected.WithLabelValues(reason).Inc()
		logger.Warn("ws_event_rejected", "conn", c.ConnID, "reason", reason, "error", err)
		c.sendError(errInvalidEvent)
		return
	}

	switch e := ev.(type) {
	case models.JoinChat:
		if !c.bindUser(e.UserID) {
			return
		}
		c.join(ctx, e)
	case models.SendMessage:
		if !c.bindUser(e.UserID) {
			return
		}
		c.send(ctx, e)
	case models.LeaveChat:
		if !c.bindUser(e.UserID) {
			return
		}
		c.leave(e.Room())
	}
}

// bindUser fixes the connection's user on the first event and rejects any
// later event that claims a different user.
func (c *Client) bindUser(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UserID == "" {
		c.UserID = userID
		return true
	}
	if c.UserID != userID {
		metrics.EventsRejected.WithLabelValues(errUserMismatch).Inc()
		logger.Warn("ws_user_mismatch", "conn", c.ConnID, "bound", c.UserID, "claimed", userID)
		c.sendError(errUserMismatch)
		return false
	}
	return true
}

func (c *Client) join(ctx context.Context, e models.JoinChat) {
	room := e.Room()
	c.mu.Lock()
	_, joined := c.rooms[room]
	c.mu.Unlock()
	if joined {
		return
	}

	userID := e.UserID
	sub, err := c.server.broker.SubscribeToConversation(ctx, room, func(msg *models.Message) {
		// the sender rendered its own message optimistically
		if msg.SenderID == userID {
			return
		}
		select {
		case c.MessageChan <- models.NewMessageFrom(msg):
			metrics.MessagesDelivered.Inc()
		case <-time.After(deliveryDeadline):
			logger.Warn("ws_delivery_timeout", "conn", c.ConnID, "room", room)
		case <-c.DoneChan:
		}
	})
	if err != nil {
		logger.Error("room_subscribe_failed", "conn", c.ConnID, "room", room, "error", err)
		c.sendError(errJoinFailed)
		return
	}

	c.mu.Lock()
	c.rooms[room] = sub
	c.mu.Unlock()
	metrics.RoomsJoined.Inc()
	logger.Info("room_joined", "conn", c.ConnID, "user", e.UserID, "name", e.DisplayName, "room", room)
}

func (c *Client) send(ctx context.Context, e models.SendMessage) {
	room := e.Room()
	c.mu.Lock()
	_, joined := c.rooms[room]
	c.mu.Unlock()
	if !joined {
		metrics.EventsRejected.WithLabelValues(errNotJoined).Inc()
		c.sendError(errNotJoined)
		return
	}
	if !c.limiter.Allow() {
		metrics.EventsRejected.WithLabelValues(errRateLimited).Inc()
		c.sendError(errRateLimited)
		return
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: room,
		SenderID:       e.UserID,
		SenderName:     e.DisplayName,
		Body:           e.Body,
		CreatedAt:      c.server.createdAt(e.SentAt),
	}

	if err := c.server.store.Append(msg); err != nil {
		logger.Error("message_store_failed", "conn", c.ConnID, "room", room, "error", err)
		c.sendError(errSendFailed)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.server.broker.PublishMessage(pubCtx, msg); err != nil {
		logger.Error("message_publish_failed", "conn", c.ConnID, "room", room, "error", err)
		c.sendError(errSendFailed)
		return
	}
	metrics.MessagesPublished.Inc()
}

func (c *Client) leave(room string) {
	c.mu.Lock()
	sub, ok := c.rooms[room]
	delete(c.rooms, room)
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.Stop()
	metrics.RoomsJoined.Dec()
	logger.Info("room_left", "conn", c.ConnID, "user", c.UserID, "room", room)
}

// leaveAll stops every room subscription held by the connection.
func (c *Client) leaveAll() {
	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[string]nats_service.Subscription)
	c.mu.Unlock()
	for _, sub := range rooms {
		sub.Stop()
		metrics.RoomsJoined.Dec()
	}
}

func (c *Client) sendError(code string) {
	select {
	case c.MessageChan <- models.ErrorEvent{Error: code}:
	case <-c.DoneChan:
	default:
		logger.Warn("ws_error_dropped", "conn", c.ConnID, "code", code)
	}
}

// HandleWebSocket manages the lifecycle of a WebSocket connection
func (s *Server) HandleWebSocket(conn *websocket.Conn) {
	client := s.NewClient(conn)
	metrics.ConnectionsActive.Inc()
	logger.Info("ws_connected", "conn", client.ConnID, "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		client.leaveAll()
		_ = conn.Close()
		metrics.ConnectionsActive.Dec()
		logger.Info("ws_disconnected", "conn", client.ConnID, "user", client.UserID)
	}()

	go client.HandleWrite()

	// blocks until the connection closes
	client.HandleRead(ctx)
}
