package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/karthikraju391/matchchat/models"
	"github.com/karthikraju391/matchchat/nats_service"
)

// memBroker delivers published messages synchronously to every subscriber
// of the room.
type memBroker struct {
	mu        sync.Mutex
	subs      map[string]map[*memSub]func(*models.Message)
	published []*models.Message
	failPub   error
	failSub   error
}

type memSub struct {
	b    *memBroker
	room string
}

func (s *memSub) Stop() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.subs[s.room], s)
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[string]map[*memSub]func(*models.Message))}
}

func (b *memBroker) PublishMessage(_ context.Context, msg *models.Message) error {
	if b.failPub != nil {
		return b.failPub
	}
	b.mu.Lock()
	b.published = append(b.published, msg)
	var handlers []func(*models.Message)
	for _, h := range b.subs[msg.ConversationID] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *memBroker) SubscribeToConversation(_ context.Context, room string, handler func(*models.Message)) (nats_service.Subscription, error) {
	if b.failSub != nil {
		return nil, b.failSub
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &memSub{b: b, room: room}
	if b.subs[room] == nil {
		b.subs[room] = make(map[*memSub]func(*models.Message))
	}
	b.subs[room][sub] = handler
	return sub, nil
}

func (b *memBroker) subscribers(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[room])
}

type memStore struct {
	mu      sync.Mutex
	msgs    map[string][]*models.Message
	failErr error
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[string][]*models.Message)}
}

func (s *memStore) Append(msg *models.Message) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[msg.ConversationID] = append(s.msgs[msg.ConversationID], msg)
	return nil
}

func (s *memStore) List(room string, limit int) ([]*models.Message, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.msgs[room]
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:], nil
	}
	return msgs, nil
}

var errBoom = errors.New("boom")
