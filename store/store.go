package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/karthikraju391/matchchat/logger"
	"github.com/karthikraju391/matchchat/models"
)

var ErrClosed = errors.New("history store is closed")

// Store is the durable per-room message log, backed by pebble.
//
// Keys are msg/<room>/<createdAt ns, zero padded>/<id>, so a prefix scan
// yields a room's messages in creation order.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the store under path.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, &pebble.Options{})
}

// OpenWithOptions lets callers supply pebble options, e.g. an in-memory FS.
func OpenWithOptions(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("failed to open history store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append persists msg synchronously.
func (s *Store) Append(msg *models.Message) error {
	if s.db == nil {
		return ErrClosed
	}
	if msg.ConversationID == "" || msg.ID == "" {
		return fmt.Errorf("message requires conversation id and id")
	}
	val, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.db.Set(messageKey(msg), val, pebble.Sync); err != nil {
		logger.Error("history_append_failed", "room", msg.ConversationID, "error", err)
		return fmt.Errorf("failed to store message %s: %w", msg.ID, err)
	}
	return nil
}

// List returns the newest limit messages of room in ascending creation
// order. limit <= 0 returns everything.
func (s *Store) List(room string, limit int) ([]*models.Message, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	prefix := roomPrefix(room)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator for room %s: %w", room, err)
	}
	defer iter.Close()

	var out []*models.Message
	for valid := iter.Last(); valid; valid = iter.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var msg models.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			logger.Warn("history_record_corrupt", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, &msg)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan room %s: %w", room, err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func roomPrefix(room string) []byte {
	return []byte("msg/" + room + "/")
}

func messageKey(msg *models.Message) []byte {
	return []byte(fmt.Sprintf("msg/%s/%020d/%s", msg.ConversationID, msg.CreatedAt.UnixNano(), msg.ID))
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	end[len(end)-1]++
	return end
}
