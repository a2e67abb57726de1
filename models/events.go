package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event type tags carried in the "type" field of every frame.
const (
	TypeJoinChat    = "joinChat"
	TypeSendMessage = "sendMessage"
	TypeLeaveChat   = "leaveChat"
	TypeNewMessage  = "newMessage"
	TypeError       = "error"
)

// MaxBodyLength caps the body of a single chat message in bytes.
const MaxBodyLength = 4096

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// ClientEvent is a frame sent by a chat client to the server.
type ClientEvent interface {
	Validate() error
	clientEvent()
}

// ServerEvent is a frame sent by the server to a chat client.
type ServerEvent interface {
	Validate() error
	serverEvent()
}

type JoinChat struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	TargetUserID string `json:"targetUserId"`
}

type SendMessage struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	TargetUserID string `json:"targetUserId"`
	Body         string `json:"body"`
	// SentAt is the sender's clock at the optimistic append. Optional.
	SentAt *time.Time `json:"sentAt,omitempty"`
}

type LeaveChat struct {
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId"`
}

type NewMessage struct {
	Room        string    `json:"room"`
	SenderID    string    `json:"senderId"`
	DisplayName string    `json:"displayName"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

func (JoinChat) clientEvent()    {}
func (SendMessage) clientEvent() {}
func (LeaveChat) clientEvent()   {}
func (NewMessage) serverEvent()  {}
func (ErrorEvent) serverEvent()  {}

func (e JoinChat) Room() string    { return RoomID(e.UserID, e.TargetUserID) }
func (e SendMessage) Room() string { return RoomID(e.UserID, e.TargetUserID) }
func (e LeaveChat) Room() string   { return RoomID(e.UserID, e.TargetUserID) }

func (e JoinChat) Validate() error {
	return validatePair(e.UserID, e.TargetUserID)
}

func (e SendMessage) Validate() error {
	if err := validatePair(e.UserID, e.TargetUserID); err != nil {
		return err
	}
	return validateBody(e.Body)
}

func (e LeaveChat) Validate() error {
	return validatePair(e.UserID, e.TargetUserID)
}

func (e NewMessage) Validate() error {
	if e.Room == "" || e.SenderID == "" {
		return fmt.Errorf("%w: room and senderId are required", ErrMalformedEvent)
	}
	return validateBody(e.Body)
}

func (e ErrorEvent) Validate() error {
	if e.Error == "" {
		return fmt.Errorf("%w: error is required", ErrMalformedEvent)
	}
	return nil
}

func validatePair(userID, targetUserID string) error {
	if userID == "" || targetUserID == "" {
		return fmt.Errorf("%w: userId and targetUserId are required", ErrMalformedEvent)
	}
	if userID == targetUserID {
		return fmt.Errorf("%w: cannot chat with self", ErrMalformedEvent)
	}
	return nil
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: body is empty", ErrMalformedEvent)
	}
	if len(body) > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedEvent, MaxBodyLength)
	}
	return nil
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeClientEvent parses and validates a client frame.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var ev ClientEvent
	var err error
	switch env.Type {
	case TypeJoinChat:
		var e JoinChat
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeSendMessage:
		var e SendMessage
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeLeaveChat:
		var e LeaveChat
		err = json.Unmarshal(raw, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeServerEvent parses and validates a server frame.
func DecodeServerEvent(raw []byte) (ServerEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var ev ServerEvent
	var err error
	switch env.Type {
	case TypeNewMessage:
		var e NewMessage
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeError:
		var e ErrorEvent
		err = json.Unmarshal(raw, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EncodeClientEvent renders ev with its type tag.
func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	switch e := ev.(type) {
	case JoinChat:
		return json.Marshal(struct {
			Type string `json:"type"`
			JoinChat
		}{TypeJoinChat, e})
	case SendMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			SendMessage
		}{TypeSendMessage, e})
	case LeaveChat:
		return json.Marshal(struct {
			Type string `json:"type"`
			LeaveChat
		}{TypeLeaveChat, e})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// EncodeServerEvent renders ev with its type tag.
func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	switch e := ev.(type) {
	case NewMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			NewMessage
		}{TypeNewMessage, e})
	case ErrorEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			ErrorEvent
		}{TypeError, e})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// NewMessageFrom converts a stored message to its live event.
func NewMessageFrom(msg *Message) NewMessage {
	return NewMessage{
		Room:        msg.ConversationID,
		SenderID:    msg.SenderID,
		DisplayName: msg.SenderName,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
	}
}
