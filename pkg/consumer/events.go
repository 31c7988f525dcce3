package consumer

import (
	"context"
	"slices"
)

// Event reports the outcome of one processed message. Err is nil on success and a
// *HandlerError otherwise.
type Event struct {
	Message *Message
	Err     error
}

// OK reports whether the handler succeeded.
func (e Event) OK() bool { return e.Err == nil }

// Subscribe returns a channel receiving one Event per processed message. Sends block until
// the subscriber reads or the consumer stops, so subscribers must keep draining. The channel
// is closed when Start returns.
func (c *Consumer) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// OnSuccess registers fn to run synchronously for every successfully handled message.
func (c *Consumer) OnSuccess(fn func(*Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, func(ev Event) {
		if ev.OK() {
			fn(ev.Message)
		}
	})
}

// OnError registers fn to run synchronously for every message whose handler failed.
func (c *Consumer) OnError(fn func(error, *Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, func(ev Event) {
		if !ev.OK() {
			fn(ev.Err, ev.Message)
		}
	})
}

func (c *Consumer) emit(ctx context.Context, ev Event) {
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	subscribers := slices.Clone(c.subscribers)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
	for _, ch := range subscribers {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
}
