package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/karthikraju391/matchchat/models"
)

// testServer is an in-memory chat server. /ws records every client frame and
// hands the connection to the test; other paths go to rest.
type testServer struct {
	ln     *fasthttputil.InmemoryListener
	frames chan models.ClientEvent
	conns  chan *websocket.Conn
	rest   fasthttp.RequestHandler
}

func startServer(t *testing.T, rest fasthttp.RequestHandler) *testServer {
	t.Helper()
	s := &testServer{
		ln:     fasthttputil.NewInmemoryListener(),
		frames: make(chan models.ClientEvent, 32),
		conns:  make(chan *websocket.Conn, 4),
		rest:   rest,
	}
	upgrader := websocket.FastHTTPUpgrader{}

	go func() {
		_ = fasthttp.Serve(s.ln, func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) != "/ws" {
				if s.rest == nil {
					ctx.SetStatusCode(fasthttp.StatusNotFound)
					return
				}
				s.rest(ctx)
				return
			}
			_ = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
				s.conns <- conn
				for {
					_, raw, err := conn.ReadMessage()
					if err != nil {
						return
					}
					ev, err := models.DecodeClientEvent(raw)
					if err != nil {
						continue
					}
					s.frames <- ev
				}
			})
		})
	}()
	t.Cleanup(func() { _ = s.ln.Close() })
	return s
}

func (s *testServer) netDial(context.Context, string, string) (net.Conn, error) {
	return s.ln.Dial()
}

func (s *testServer) httpClient() *fasthttp.Client {
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return s.ln.Dial() },
	}
}

func (s *testServer) dialer(t *testing.T) *WSDialer {
	t.Helper()
	d, err := NewWSDialer("http://chat.test", s.netDial)
	require.NoError(t, err)
	return d
}

func (s *testServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func (s *testServer) nextFrame(t *testing.T) models.ClientEvent {
	t.Helper()
	select {
	case ev := <-s.frames:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no client frame")
		return nil
	}
}

func push(t *testing.T, conn *websocket.Conn, ev models.ServerEvent) {
	t.Helper()
	raw, err := models.EncodeServerEvent(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}
