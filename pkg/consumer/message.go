package consumer

import (
	"sync"

	"StreamMin-Cli/pkg/messaging"
)

// Message is one decoded stream entry handed to a Handler.
//
// It carries a one-shot cancellation token that handler code may watch to abort early.
// The consumer never cancels a message itself.
type Message struct {
	ID     string
	Header map[string]interface{}
	Body   map[string]interface{}

	once sync.Once
	done chan struct{}
}

// NewMessage wraps a decoded payload.
func NewMessage(id string, p messaging.Payload) *Message {
	return &Message{
		ID:     id,
		Header: p.Header,
		Body:   p.Body,
		done:   make(chan struct{}),
	}
}

// Cancel marks the message canceled. Only the first call has an effect.
func (m *Message) Cancel() {
	m.once.Do(func() { close(m.done) })
}

// Canceled reports whether Cancel has been called.
func (m *Message) Canceled() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Done is closed when the message is canceled.
func (m *Message) Done() <-chan struct{} { return m.done }
