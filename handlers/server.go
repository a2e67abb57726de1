package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/metrics"
	"github.com/karthikraju391/matchchat/models"
	"github.com/karthikraju391/matchchat/nats_service"
)

// Broker fans room messages out to every connection that joined the room.
type Broker interface {
	PublishMessage(ctx context.Context, msg *models.Message) error
	SubscribeToConversation(ctx context.Context, conversationID string, handler func(msg *models.Message)) (nats_service.Subscription, error)
}

// HistoryStore is the durable message log behind the history endpoint.
type HistoryStore interface {
	Append(msg *models.Message) error
	List(room string, limit int) ([]*models.Message, error)
}

// Server wires the live channel and the history endpoint to their backends.
type Server struct {
	broker Broker
	store  HistoryStore
	cfg    config.ServerConfig
	now    func() time.Time
}

// NewServer wires the broker and history store behind the HTTP routes.
func NewServer(broker Broker, store HistoryStore, cfg config.ServerConfig) *Server {
	return &Server{
		broker: broker,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Routes registers every endpoint on app.
func (s *Server) Routes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Get("/api/chat/:targetUserId", s.HandleHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		// Check if the request is a WebSocket upgrade request
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.HandleWebSocket))
}

// createdAt picks the timestamp stored for a new message: the sender's clock
// when it is within the allowed skew, otherwise server time.
func (s *Server) createdAt(sentAt *time.Time) time.Time {
	now := s.now().UTC()
	if sentAt == nil || sentAt.IsZero() {
		return now
	}
	skew := now.Sub(*sentAt)
	if skew > s.cfg.MaxClockSkew || skew < -s.cfg.MaxClockSkew {
		return now
	}
	return sentAt.UTC()
}
