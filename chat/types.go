package chat

import (
	"context"
	"time"

	"github.com/karthikraju391/matchchat/models"
)

// Identity is the local user as known to the UI layer.
type Identity struct {
	ID          string
	DisplayName string
}

// IdentityProvider resolves the local user. ok is false until the user is
// known (e.g. profile still loading).
type IdentityProvider interface {
	CurrentIdentity() (id Identity, ok bool)
}

// StaticIdentity is an IdentityProvider with a fixed user.
type StaticIdentity Identity

func (s StaticIdentity) CurrentIdentity() (Identity, bool) {
	return Identity(s), s.ID != ""
}

// ConversationID is the unordered pair of participants. Both sides build the
// same value, and therefore the same room.
type ConversationID struct {
	first, second string
}

// NewConversationID orders the two participants so either order yields the same ID.
func NewConversationID(a, b string) ConversationID {
	if b < a {
		a, b = b, a
	}
	return ConversationID{first: a, second: b}
}

// Room is the server room name shared by both participants.
func (c ConversationID) Room() string { return models.RoomID(c.first, c.second) }

// Other returns the participant that is not userID.
func (c ConversationID) Other(userID string) string {
	if c.first == userID {
		return c.second
	}
	return c.first
}

// String renders the ID for logs.
func (c ConversationID) String() string { return c.first + "$" + c.second }

// Origin records where a Message entered the log.
type Origin string

const (
	OriginHistorical          Origin = "historical"
	OriginLiveIncoming        Origin = "live-incoming"
	OriginLiveOutgoingPending Origin = "live-outgoing-pending"
)

// Message is one rendered entry of a conversation.
type Message struct {
	SenderID   string
	SenderName string
	Body       string
	Timestamp  time.Time
	Origin     Origin
}

// State is the controller's lifecycle phase.
type State string

const (
	StateIdle           State = "idle"
	StateLoadingHistory State = "loading-history"
	StateConnecting     State = "connecting"
	StateJoined         State = "joined"
	StateClosed         State = "closed"
	StateError          State = "error"
)

// Snapshot is a read-only copy of the controller for rendering.
type Snapshot struct {
	State        State
	Conversation ConversationID
	Messages     []Message
}

// HistoryRecord is one entry of the durable log.
type HistoryRecord struct {
	SenderID   string
	SenderName string
	Body       string
	CreatedAt  time.Time
}

// HistoryLoader fetches the durable log of conv as seen by asUser, oldest first.
type HistoryLoader interface {
	History(ctx context.Context, conv ConversationID, asUser string) ([]HistoryRecord, error)
}

type JoinPayload struct {
	LocalUserID   string
	DisplayName   string
	CounterpartID string
}

type SendPayload struct {
	SenderID      string
	DisplayName   string
	CounterpartID string
	Body          string
	SentAt        time.Time
}

// InboundMessage is a validated live event from the channel.
type InboundMessage struct {
	Room        string
	SenderID    string
	DisplayName string
	Body        string
	CreatedAt   time.Time
}

// Channel is a live, bidirectional transport. Join, Send and Leave are
// fire-and-forget: a nil error only means the frame was written.
//
// Handlers registered with OnMessage and OnError run on the transport's own
// goroutine. Disconnect must be safe to call from inside those handlers.
type Channel interface {
	Join(room string, p JoinPayload) error
	Send(room string, p SendPayload) error
	Leave(room string) error
	OnMessage(func(InboundMessage))
	OnError(func(error))
	Disconnect() error
}

// Dialer opens a new Channel. Each session dials its own.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}
