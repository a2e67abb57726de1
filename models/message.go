package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Message represents a chat message
type Message struct {
	ID             string    `json:"id"`                // Unique message ID (UUID)
	ConversationID string    `json:"conversationId"`    // Room key shared by both participants
	SenderID       string    `json:"senderId"`          // ID of the user sending the message
	SenderName     string    `json:"senderDisplayName"` // Display name of the sender at send time
	Body           string    `json:"body"`              // Message content
	CreatedAt      time.Time `json:"createdAt"`         // Timestamp of message creation
}

// HistoryResponse is the body of the history endpoint.
type HistoryResponse struct {
	Messages []*Message `json:"messages"`
}

// RoomID derives the room key for a pair of users. The pair is unordered:
// RoomID(a, b) == RoomID(b, a).
func RoomID(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "$")))
	return hex.EncodeToString(sum[:])
}
