package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/karthikraju391/matchchat/logger"
)

// Controller owns the chat session of one mounted conversation view.
//
// All state lives behind mu. Fetches, dials and channel callbacks carry the
// session they were started for and are dropped unless that session is still
// current, so a superseded session can never touch the current log. Channel
// writes and teardown always run outside mu.
type Controller struct {
	loader   HistoryLoader
	dialer   Dialer
	identity IdentityProvider
	now      func() time.Time

	mu      sync.Mutex
	current *session

	errs    chan error
	updates chan struct{}
}

type session struct {
	conv        ConversationID
	self        Identity
	counterpart string

	state   State
	log     MessageLog
	channel Channel
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// teardown is what is left to release once a session is detached.
type teardown struct {
	channel Channel
	room    string
}

// NewController returns an idle controller with no open conversation.
func NewController(loader HistoryLoader, dialer Dialer, identity IdentityProvider) *Controller {
	return &Controller{
		loader:   loader,
		dialer:   dialer,
		identity: identity,
		now:      time.Now,
		errs:     make(chan error, 16),
		updates:  make(chan struct{}, 1),
	}
}

// Errors delivers HistoryUnavailable, ChannelUnavailable, SendFailed and
// ConnectionLost errors. Errors are dropped while the buffer is full.
func (c *Controller) Errors() <-chan error { return c.errs }

// Updates receives a value after state or log changes. Notifications
// coalesce; read Snapshot for the current content.
func (c *Controller) Updates() <-chan struct{} { return c.updates }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current
	if s == nil {
		return Snapshot{State: StateIdle}
	}
	return Snapshot{
		State:        s.state,
		Conversation: s.conv,
		Messages:     s.log.Messages(),
	}
}

// Open loads history for the conversation with counterpartID, connects the
// live channel and joins the room. It is a no-op when that conversation is
// already joined. Any other session is closed first.
func (c *Controller) Open(ctx context.Context, counterpartID string) error {
	self, ok := c.identity.CurrentIdentity()
	if !ok || self.ID == "" {
		return ErrIdentityMissing
	}
	if counterpartID == "" {
		return fmt.Errorf("%w: no counterpart", ErrIdentityMissing)
	}
	if counterpartID == self.ID {
		return fmt.Errorf("%w: cannot chat with self", ErrInvalidCounterpart)
	}
	conv := NewConversationID(self.ID, counterpartID)

	c.mu.Lock()
	if cur := c.current; cur != nil && !cur.closed && cur.state == StateJoined && cur.conv == conv && cur.self.ID == self.ID {
		c.mu.Unlock()
		return nil
	}
	prev := c.detachLocked()
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conv:        conv,
		self:        self,
		counterpart: counterpartID,
		state:       StateLoadingHistory,
		ctx:         sctx,
		cancel:      cancel,
	}
	c.current = s
	c.mu.Unlock()

	// the previous session is fully released before this one goes further
	c.release(prev)
	c.notify()

	log := logger.With("room", conv.Room(), "user", self.ID)
	log.Debug("chat_session_opening", "counterpart", counterpartID)

	records, err := c.fetch(ctx, s)

	c.mu.Lock()
	if !c.isCurrentLocked(s) {
		c.mu.Unlock()
		log.Debug("chat_history_discarded")
		return ErrSuperseded
	}
	if err != nil {
		s.state = StateError
		s.log.Reset()
		s.cancel()
		c.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
		log.Warn("chat_history_failed", "error", err)
		c.report(err)
		c.notify()
		return err
	}
	s.log.Reload(historical(records))
	s.state = StateConnecting
	c.mu.Unlock()
	c.notify()

	dctx, stop := s.bound(ctx)
	ch, err := c.dialer.Dial(dctx)
	stop()

	c.mu.Lock()
	if !c.isCurrentLocked(s) {
		c.mu.Unlock()
		if err == nil {
			c.release(&teardown{channel: ch})
		}
		log.Debug("chat_dial_discarded")
		return ErrSuperseded
	}
	if err != nil {
		s.state = StateError
		s.cancel()
		c.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
		log.Warn("chat_dial_failed", "error", err)
		c.report(err)
		c.notify()
		return err
	}

	s.channel = ch
	ch.OnMessage(func(in InboundMessage) { c.handleInbound(s, in) })
	ch.OnError(func(err error) { c.handleChannelError(s, err) })
	c.mu.Unlock()

	joinErr := ch.Join(conv.Room(), JoinPayload{
		LocalUserID:   self.ID,
		DisplayName:   self.DisplayName,
		CounterpartID: counterpartID,
	})

	c.mu.Lock()
	if !c.isCurrentLocked(s) {
		// whoever detached s took its channel with it
		c.mu.Unlock()
		log.Debug("chat_join_discarded")
		return ErrSuperseded
	}
	// join is fire-and-forget; a write failure shows up as connection loss
	s.state = StateJoined
	c.mu.Unlock()

	if joinErr != nil {
		log.Warn("chat_join_write_failed", "error", joinErr)
		c.report(fmt.Errorf("%w: join: %w", ErrSendFailed, joinErr))
	}
	log.Info("chat_session_joined", "history", len(records))
	c.notify()
	return nil
}

// Send appends body to the log right away and emits it on the live channel.
// Blank bodies and sends outside the joined state are ignored. A transport
// failure returns ErrSendFailed; the optimistic message stays in the log.
func (c *Controller) Send(body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	c.mu.Lock()
	s := c.current
	if s == nil || s.closed || s.state != StateJoined {
		c.mu.Unlock()
		return nil
	}
	msg := Message{
		SenderID:   s.self.ID,
		SenderName: s.self.DisplayName,
		Body:       body,
		Timestamp:  c.now().UTC(),
		Origin:     OriginLiveOutgoingPending,
	}
	s.log.Append(msg)
	ch, room := s.channel, s.conv.Room()
	payload := SendPayload{
		SenderID:      s.self.ID,
		DisplayName:   s.self.DisplayName,
		CounterpartID: s.counterpart,
		Body:          body,
		SentAt:        msg.Timestamp,
	}
	c.mu.Unlock()
	c.notify()

	err := ch.Send(room, payload)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("%w: %w", ErrSendFailed, err)

	c.mu.Lock()
	current := c.isCurrentLocked(s)
	c.mu.Unlock()
	if !current {
		// the session closed under the write; its failure is no longer news
		logger.Debug("chat_send_failed_after_close", "room", room, "error", err)
		return err
	}
	logger.Warn("chat_send_failed", "room", room, "error", err)
	c.report(err)
	return err
}

// Refresh reloads history into the joined session. Pending and incoming
// messages that history now contains are folded into their historical copy.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	if s == nil || s.closed || s.state != StateJoined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.mu.Unlock()

	records, err := c.fetch(ctx, s)

	c.mu.Lock()
	if !c.isCurrentLocked(s) || s.state != StateJoined {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
		c.report(err)
		return err
	}
	s.log.Reload(historical(records))
	c.mu.Unlock()
	c.notify()
	return nil
}

// Close leaves the room and disconnects the channel. Calling it again is a
// no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	t := c.detachLocked()
	c.mu.Unlock()
	if t == nil {
		return
	}
	c.release(t)
	c.notify()
}

func (c *Controller) fetch(ctx context.Context, s *session) ([]HistoryRecord, error) {
	fctx, stop := s.bound(ctx)
	defer stop()
	return c.loader.History(fctx, s.conv, s.self.ID)
}

func (c *Controller) handleInbound(s *session, in InboundMessage) {
	c.mu.Lock()
	if !c.isCurrentLocked(s) || !s.live() {
		c.mu.Unlock()
		logger.Debug("chat_inbound_dropped", "reason", "stale_session", "room", in.Room)
		return
	}
	switch {
	case in.Room != "" && in.Room != s.conv.Room():
		c.mu.Unlock()
		logger.Debug("chat_inbound_dropped", "reason", "other_room", "room", in.Room)
		return
	case in.SenderID == s.self.ID:
		// already rendered by Send
		c.mu.Unlock()
		return
	case in.SenderID == "" || strings.TrimSpace(in.Body) == "":
		c.mu.Unlock()
		logger.Warn("chat_inbound_dropped", "reason", "malformed", "room", in.Room)
		return
	}

	at := in.CreatedAt
	if at.IsZero() {
		at = c.now()
	}
	added := s.log.Append(Message{
		SenderID:   in.SenderID,
		SenderName: in.DisplayName,
		Body:       in.Body,
		Timestamp:  at.UTC(),
		Origin:     OriginLiveIncoming,
	})
	c.mu.Unlock()
	if added {
		c.notify()
	}
}

func (c *Controller) handleChannelError(s *session, err error) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		c.mu.Lock()
		current := c.isCurrentLocked(s)
		c.mu.Unlock()
		if current {
			c.report(fmt.Errorf("%w: %w", ErrSendFailed, err))
		}
		return
	}

	c.mu.Lock()
	if !c.isCurrentLocked(s) {
		c.mu.Unlock()
		return
	}
	t := c.detachLocked()
	c.mu.Unlock()

	logger.Warn("chat_connection_lost", "room", s.conv.Room(), "error", err)
	c.release(t)
	c.report(fmt.Errorf("%w: %w", ErrConnectionLost, err))
	c.notify()
}

func (c *Controller) isCurrentLocked(s *session) bool {
	return c.current == s && !s.closed
}

// detachLocked marks the current session closed and hands back what must be
// released outside the lock. It returns nil when there is nothing to close.
func (c *Controller) detachLocked() *teardown {
	s := c.current
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.state = StateClosed
	s.cancel()
	t := &teardown{channel: s.channel, room: s.conv.Room()}
	s.channel = nil
	return t
}

func (c *Controller) release(t *teardown) {
	if t == nil || t.channel == nil {
		return
	}
	if t.room != "" {
		if err := t.channel.Leave(t.room); err != nil {
			logger.Debug("chat_leave_failed", "room", t.room, "error", err)
		}
	}
	if err := t.channel.Disconnect(); err != nil {
		logger.Debug("chat_disconnect_failed", "room", t.room, "error", err)
	}
}

func (c *Controller) report(err error) {
	select {
	case c.errs <- err:
	default:
		logger.Warn("chat_error_dropped", "error", err)
	}
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// live reports whether s has a channel that may carry events: joined, or
// connected with the join write still in flight.
func (s *session) live() bool {
	return s.channel != nil && (s.state == StateJoined || s.state == StateConnecting)
}

// bound derives a context that ends with either parent or the session.
func (s *session) bound(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func historical(records []HistoryRecord) []Message {
	out := make([]Message, 0, len(records))
	for _, r := range records {
		out = append(out, Message{
			SenderID:   r.SenderID,
			SenderName: r.SenderName,
			Body:       r.Body,
			Timestamp:  r.CreatedAt.UTC(),
			Origin:     OriginHistorical,
		})
	}
	return out
}
