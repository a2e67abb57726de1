package chat

import (
	"sort"
	"time"
)

type messageKey struct {
	senderID string
	at       int64
	body     string
}

func keyOf(m Message) messageKey {
	return messageKey{senderID: m.SenderID, at: m.Timestamp.UnixNano(), body: m.Body}
}

type entry struct {
	msg Message
	// at is the timestamp the message arrived with, before any clamping.
	at time.Time
}

// MessageLog keeps messages ordered by timestamp with no two entries sharing
// sender, timestamp and body. History is sorted in; live messages are only
// ever appended.
type MessageLog struct {
	entries []entry
	seen    map[messageKey]struct{}
}

func (l *MessageLog) Len() int { return len(l.entries) }

// Messages returns a copy of the log.
func (l *MessageLog) Messages() []Message {
	out := make([]Message, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.msg
	}
	return out
}

func (l *MessageLog) claim(k messageKey) bool {
	if l.seen == nil {
		l.seen = make(map[messageKey]struct{})
	}
	if _, dup := l.seen[k]; dup {
		return false
	}
	l.seen[k] = struct{}{}
	return true
}

// Insert adds m after every entry with a timestamp not later than its own.
// It reports false when m duplicates an existing entry.
func (l *MessageLog) Insert(m Message) bool {
	if !l.claim(keyOf(m)) {
		return false
	}
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].msg.Timestamp.After(m.Timestamp)
	})
	l.entries = append(l.entries, entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry{msg: m, at: m.Timestamp}
	return true
}

// Append adds m at the tail. A timestamp earlier than the tail is raised to
// the tail's; m is still de-duplicated and reconciled by its own timestamp.
func (l *MessageLog) Append(m Message) bool {
	if !l.claim(keyOf(m)) {
		return false
	}
	at := m.Timestamp
	if n := len(l.entries); n > 0 {
		if tail := l.entries[n-1].msg.Timestamp; m.Timestamp.Before(tail) {
			m.Timestamp = tail
		}
	}
	l.entries = append(l.entries, entry{msg: m, at: at})
	return true
}

// Reload replaces the historical part of the log with history. Live entries
// survive, in arrival order after history, unless history now holds the same
// sender, timestamp and body.
func (l *MessageLog) Reload(history []Message) {
	live := make([]entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.msg.Origin != OriginHistorical {
			live = append(live, e)
		}
	}

	sorted := make([]Message, len(history))
	copy(sorted, history)
	// store order breaks timestamp ties
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	l.Reset()
	for _, m := range sorted {
		l.Insert(m)
	}
	for _, e := range live {
		m := e.msg
		m.Timestamp = e.at
		l.Append(m)
	}
}

func (l *MessageLog) Reset() {
	l.entries = nil
	l.seen = make(map[messageKey]struct{})
}
