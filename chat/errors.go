package chat

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityMissing    = errors.New("identity missing")
	ErrInvalidCounterpart = errors.New("invalid counterpart")
	ErrHistoryUnavailable = errors.New("history unavailable")
	ErrChannelUnavailable = errors.New("live channel unavailable")
	ErrSendFailed         = errors.New("send failed")
	ErrConnectionLost     = errors.New("live channel connection lost")
	ErrNotJoined          = errors.New("session not joined")
	ErrSuperseded         = errors.New("session superseded")
)

// RemoteError is an error event the server sent on the live channel.
type RemoteError struct {
	Code string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server rejected event: %s", e.Code)
}
