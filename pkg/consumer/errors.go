package consumer

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("consumer already started")
	// ErrPayloadParse marks an entry whose payload could not be decoded. Such entries stay pending.
	ErrPayloadParse = errors.New("failed to parse message payload")
	// ErrAck marks a failed acknowledgment. The entry stays pending and is reclaimed later.
	ErrAck = errors.New("failed to ack message")
	// ErrClaim marks a failed claim of a stale entry.
	ErrClaim = errors.New("failed to claim stale message")
)

// GroupInitError is returned by Start when the consumer group could not be created
// for a reason other than it already existing.
type GroupInitError struct {
	Stream string
	Group  string
	Err    error
}

func (e *GroupInitError) Error() string {
	return fmt.Sprintf("create consumer group %s on stream %s: %v", e.Group, e.Stream, e.Err)
}

func (e *GroupInitError) Unwrap() error { return e.Err }

// HandlerError is delivered in Event.Err when the handler failed or panicked.
type HandlerError struct {
	MessageID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle message %s: %v", e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
