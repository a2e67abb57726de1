package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/karthikraju391/matchchat/chat"
)

func TestFormatMessage(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 5, 0, 0, time.Local)

	assert.Equal(t, "[9:05AM] Bob: hi", formatMessage(chat.Message{SenderID: "bob", SenderName: "Bob", Body: "hi", Timestamp: at}, "alice"))
	assert.Equal(t, "[9:05AM] bob: hi", formatMessage(chat.Message{SenderID: "bob", Body: "hi", Timestamp: at}, "alice"))
	assert.Equal(t, "[9:05AM] you: yo", formatMessage(chat.Message{SenderID: "alice", SenderName: "Alice", Body: "yo", Timestamp: at}, "alice"))
}

func TestPrinterPrintsEachEntryOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "alice")
	at := time.Date(2026, 10, 19, 9, 5, 0, 0, time.Local)

	first := chat.Message{SenderID: "bob", Body: "one", Timestamp: at}
	second := chat.Message{SenderID: "alice", Body: "two", Timestamp: at.Add(time.Minute)}

	p.print([]chat.Message{first})
	p.print([]chat.Message{first, second})
	// a refresh turns the pending entry historical; it is the same message
	second.Origin = chat.OriginHistorical
	p.print([]chat.Message{first, second})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"[9:05AM] bob: one", "[9:06AM] you: two"}, lines)
}

func TestReadLines(t *testing.T) {
	out := make(chan string)
	go readLines(strings.NewReader("hi\n/quit\n"), out)

	var got []string
	for l := range out {
		got = append(got, l)
	}
	assert.Equal(t, []string{"hi", "/quit"}, got)
}
