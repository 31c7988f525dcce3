package messaging

import (
	"context"
	"time"
)

const (
	// PayloadField is the stream entry field holding the serialized payload.
	PayloadField = "payload"

	// ReadNew asks ReadGroup for entries never delivered to any consumer of the group.
	ReadNew = ">"
	// ReadFromStart reads a consumer's history from the first pending entry.
	ReadFromStart = "0"

	// PendingMin and PendingMax bound an open pending-entries range.
	PendingMin = "-"
	PendingMax = "+"
)

// Message represents a raw stream entry with its ID and serialized payload.
// Payload is nil when the entry carried no usable payload field.
type Message struct {
	ID      string
	Payload []byte
}

// PendingMessageMetadata describes one delivered-but-unacknowledged entry as reported by
// the group's pending-entries view. It is a snapshot and is recomputed on every scan.
type PendingMessageMetadata struct {
	ID            string
	Consumer      string
	Idle          time.Duration
	DeliveryCount int64
}

// IdleMilliseconds returns the time since the last delivery attempt in milliseconds.
func (p PendingMessageMetadata) IdleMilliseconds() int64 { return p.Idle.Milliseconds() }

// Stream abstracts one append-only log with consumer-group semantics
// (group bootstrap, group read, pending scan, claim, ack).
type Stream interface {
	// EnsureGroup creates the stream (if absent) and the group starting at start.
	// An already existing group is not an error.
	EnsureGroup(ctx context.Context, group, start string) error
	// Append adds a serialized payload to the stream and returns the assigned ID.
	Append(ctx context.Context, payload []byte) (string, error)
	// ReadGroup reads up to count entries for consumer. from=ReadNew returns new entries and may block
	// for block; any other ID returns the consumer's own pending entries after that ID.
	ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration, from string) ([]Message, error)
	// Pending lists group-wide pending entries with IDs in [start, end].
	Pending(ctx context.Context, group, start, end string, count int) ([]PendingMessageMetadata, error)
	// Claim reassigns pending entries idle for at least minIdle to consumer and returns the ones it won.
	Claim(ctx context.Context, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error)
	// Ack acknowledges processed entries by ID.
	Ack(ctx context.Context, group string, ids ...string) error
	// Stats returns the stream length and the group's pending count.
	Stats(ctx context.Context, group string) (length int64, pending int64, err error)
	// Close releases any underlying resources.
	Close(ctx context.Context) error
}
