package chat

import (
	"context"
	"sync"
	"time"
)

type loaderFunc func(ctx context.Context, conv ConversationID, asUser string) ([]HistoryRecord, error)

type fakeLoader struct {
	mu    sync.Mutex
	calls int
	fn    loaderFunc
}

func (l *fakeLoader) History(ctx context.Context, conv ConversationID, asUser string) ([]HistoryRecord, error) {
	l.mu.Lock()
	l.calls++
	fn := l.fn
	l.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, conv, asUser)
}

func (l *fakeLoader) set(fn loaderFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fn = fn
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func returning(records ...HistoryRecord) loaderFunc {
	return func(context.Context, ConversationID, string) ([]HistoryRecord, error) {
		return records, nil
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	err      error
	hook     func(ctx context.Context) error
	gate     *writeGate
}

func (d *fakeDialer) Dial(ctx context.Context) (Channel, error) {
	d.mu.Lock()
	hook, err, gate := d.hook, d.err, d.gate
	d.mu.Unlock()
	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}
	ch := &fakeChannel{gate: gate}
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
	return ch, nil
}

func (d *fakeDialer) dialed() []*fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*fakeChannel, len(d.channels))
	copy(out, d.channels)
	return out
}

type fakeChannel struct {
	mu          sync.Mutex
	joins       []JoinPayload
	joinRooms   []string
	sends       []SendPayload
	leaves      []string
	disconnects int
	sendErr     error
	onMsg       func(InboundMessage)
	onErr       func(error)
	gate        *writeGate
}

// writeGate holds Join and Send writes until released, like a socket stuck
// on a slow peer.
type writeGate struct {
	entered chan struct{}
	release chan struct{}
}

func newWriteGate() *writeGate {
	return &writeGate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (f *fakeChannel) wait() {
	f.mu.Lock()
	g := f.gate
	f.mu.Unlock()
	if g == nil {
		return
	}
	g.entered <- struct{}{}
	<-g.release
}

func (f *fakeChannel) setGate(g *writeGate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = g
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeChannel) Join(room string, p JoinPayload) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, p)
	f.joinRooms = append(f.joinRooms, room)
	return nil
}

func (f *fakeChannel) Send(_ string, p SendPayload) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, p)
	return nil
}

func (f *fakeChannel) Leave(room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, room)
	return nil
}

func (f *fakeChannel) OnMessage(h func(InboundMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMsg = h
}

func (f *fakeChannel) OnError(h func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onErr = h
}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

// deliver plays an inbound event the way a transport read loop would.
func (f *fakeChannel) deliver(in InboundMessage) {
	f.mu.Lock()
	h := f.onMsg
	f.mu.Unlock()
	if h != nil {
		h(in)
	}
}

func (f *fakeChannel) fail(err error) {
	f.mu.Lock()
	h := f.onErr
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (f *fakeChannel) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// stepClock returns start, start+1ms, start+2ms, ...
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Millisecond)
		return t
	}
}
