package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/karthikraju391/matchchat/chat"
	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/logger"
	"github.com/karthikraju391/matchchat/models"
)

var errChannelClosed = errors.New("channel closed")

// WSDialer opens live channels against the server's /ws endpoint.
type WSDialer struct {
	url    string
	dialer *websocket.Dialer
}

// NewWSDialer derives the websocket URL from an http(s) server URL.
// netDial overrides the TCP dial, mostly for tests; nil uses the default.
func NewWSDialer(serverURL string, netDial func(ctx context.Context, network, addr string) (net.Conn, error)) (*WSDialer, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid server url %q: unsupported scheme", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return &WSDialer{
		url: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.WriteWait,
			NetDialContext:   netDial,
		},
	}, nil
}

// Dial implements chat.Dialer.
func (d *WSDialer) Dial(ctx context.Context) (chat.Channel, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	return newWSChannel(conn), nil
}

// wsChannel speaks the chat event protocol over one websocket connection.
// The read loop starts with the first Join so that no event arrives before
// the handlers are in place.
type wsChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	onMsg  func(chat.InboundMessage)
	onErr  func(error)
	joined map[string]models.JoinChat

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		conn:   conn,
		joined: make(map[string]models.JoinChat),
		done:   make(chan struct{}),
	}
}

func (c *wsChannel) OnMessage(h func(chat.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = h
}

func (c *wsChannel) OnError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onErr = h
}

func (c *wsChannel) Join(room string, p chat.JoinPayload) error {
	ev := models.JoinChat{
		UserID:       p.LocalUserID,
		DisplayName:  p.DisplayName,
		TargetUserID: p.CounterpartID,
	}
	if ev.Room() != room {
		return fmt.Errorf("join %s: room does not match participants", room)
	}
	c.startOnce.Do(func() { go c.readLoop() })
	if err := c.write(ev); err != nil {
		return err
	}
	c.mu.Lock()
	c.joined[room] = ev
	c.mu.Unlock()
	return nil
}

func (c *wsChannel) Send(room string, p chat.SendPayload) error {
	ev := models.SendMessage{
		UserID:       p.SenderID,
		DisplayName:  p.DisplayName,
		TargetUserID: p.CounterpartID,
		Body:         p.Body,
	}
	if ev.Room() != room {
		return fmt.Errorf("send %s: room does not match participants", room)
	}
	if !p.SentAt.IsZero() {
		at := p.SentAt.UTC()
		ev.SentAt = &at
	}
	return c.write(ev)
}

// Leave is a no-op for rooms this channel never joined.
func (c *wsChannel) Leave(room string) error {
	c.mu.Lock()
	join, ok := c.joined[room]
	delete(c.joined, room)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.write(models.LeaveChat{UserID: join.UserID, TargetUserID: join.TargetUserID})
}

// Disconnect closes the connection without waiting for the read loop, so it
// can be called from a handler.
func (c *wsChannel) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(config.WriteWait))
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) write(ev models.ClientEvent) error {
	if c.closed.Load() {
		return errChannelClosed
	}
	raw, err := models.EncodeClientEvent(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("write %T: %w", ev, err)
	}
	return nil
}

func (c *wsChannel) readLoop() {
	defer close(c.done)

	c.conn.SetReadLimit(config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(config.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("ws_read_error", "error", err)
			}
			c.emitError(err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(config.PongWait))

		ev, err := models.DecodeServerEvent(raw)
		if err != nil {
			logger.Warn("ws_event_dropped", "error", err)
			continue
		}
		switch e := ev.(type) {
		case models.NewMessage:
			c.emitMessage(chat.InboundMessage{
				Room:        e.Room,
				SenderID:    e.SenderID,
				DisplayName: e.DisplayName,
				Body:        e.Body,
				CreatedAt:   e.CreatedAt,
			})
		case models.ErrorEvent:
			c.emitError(&chat.RemoteError{Code: e.Error})
		}
	}
}

func (c *wsChannel) emitMessage(in chat.InboundMessage) {
	c.mu.Lock()
	h := c.onMsg
	c.mu.Unlock()
	if h != nil {
		h(in)
	}
}

func (c *wsChannel) emitError(err error) {
	c.mu.Lock()
	h := c.onErr
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}
