package nats_service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/logger"
	"github.com/karthikraju391/matchchat/models"
)

// Subscription is a running room consumer. jetstream.ConsumeContext
// satisfies it.
type Subscription interface {
	Stop()
}

type NatsService struct {
	js  jetstream.JetStream
	nc  *nats.Conn
	cfg config.ServerConfig
}

// NewNatsService connects to NATS and makes sure the chat stream exists.
func NewNatsService(cfg config.ServerConfig) (*NatsService, error) {
	nc, err := nats.Connect(cfg.NatsURL,
		nats.Name("matchchat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats_reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		logger.Info("stream_missing_creating", "stream", cfg.StreamName)
		streamCfg := jetstream.StreamConfig{
			Name:        cfg.StreamName,
			Description: "Live chat room messages",
			Subjects:    []string{fmt.Sprintf("%s.*", cfg.SubjectPrefix)},
			MaxAge:      cfg.StreamMaxAge,
			Storage:     jetstream.FileStorage,
		}
		stream, err = js.CreateStream(ctx, streamCfg)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream '%s': %w", cfg.StreamName, err)
		}
		logger.Info("stream_created", "stream", cfg.StreamName)
	} else {
		logger.Info("stream_found", "stream", stream.CachedInfo().Config.Name)
	}

	return &NatsService{js: js, nc: nc, cfg: cfg}, nil
}

// Close NATS connection
func (s *NatsService) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// PublishMessage sends a message to its room subject.
func (s *NatsService) PublishMessage(ctx context.Context, msg *models.Message) error {
	subject := s.subject(msg.ConversationID)
	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// message id doubles as the JetStream dedup id
	if _, err := s.js.Publish(ctx, subject, msgData, jetstream.WithMsgID(msg.ID)); err != nil {
		return fmt.Errorf("failed to publish message to subject '%s': %w", subject, err)
	}
	logger.Debug("message_published", "subject", subject, "id", msg.ID)
	return nil
}

// SubscribeToConversation starts an ephemeral consumer on the room subject
// and calls handler for each message published after the call. History is
// served from the durable store, not replayed from the stream.
func (s *NatsService) SubscribeToConversation(ctx context.Context, conversationID string, handler func(msg *models.Message)) (Subscription, error) {
	subject := s.subject(conversationID)
	cons, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.StreamName, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckNonePolicy,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for subject '%s': %w", subject, err)
	}

	consumeCtx, err := cons.Consume(func(jsMsg jetstream.Msg) {
		var msg models.Message
		if err := json.Unmarshal(jsMsg.Data(), &msg); err != nil {
			logger.Warn("message_unmarshal_failed", "subject", jsMsg.Subject(), "error", err)
			return
		}
		handler(&msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from subject '%s': %w", subject, err)
	}

	logger.Debug("room_subscribed", "subject", subject)
	return consumeCtx, nil
}

func (s *NatsService) subject(conversationID string) string {
	return Subject(s.cfg.SubjectPrefix, conversationID)
}

// Subject generates the NATS subject for a conversation.
func Subject(prefix, conversationID string) string {
	return fmt.Sprintf("%s.%s", prefix, conversationID)
}
