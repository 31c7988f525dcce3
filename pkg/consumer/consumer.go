package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"

	"StreamMin-Cli/pkg/messaging"
	"StreamMin-Cli/pkg/observability"
	"StreamMin-Cli/pkg/taskpool"
)

// Handler processes one message. Returning an error (or panicking) reports the message as
// failed; it is acknowledged either way.
type Handler func(ctx context.Context, msg *Message) error

// Consumer is one member of a consumer group. It replays its own unacknowledged backlog,
// then consumes new entries while reclaiming entries that other members left pending for
// longer than Options.Timeout. Every entry goes through a bounded pool into the handler and
// is acknowledged afterwards, giving at-least-once delivery.
type Consumer struct {
	id      string
	stream  string
	group   string
	handler Handler
	opts    Options
	label   string

	// main serves group bootstrap, backlog and live reads; secondary serves pending scans,
	// claims and acks so a blocked read never delays them.
	main      messaging.Stream
	secondary messaging.Stream

	pool    *taskpool.Pool
	tracer  trace.Tracer
	metrics observability.ConsumerMetrics

	mu          sync.Mutex
	started     bool
	stopped     bool
	subscribers []chan Event
	listeners   []func(Event)
}

// New creates a consumer identified by id in group over stream. main and secondary must be
// independent connections to the same stream.
func New(id, stream, group string, handler Handler, opts Options, main, secondary messaging.Stream) (*Consumer, error) {
	if id == "" || stream == "" || group == "" {
		return nil, errors.New("consumer requires id, stream and group")
	}
	if handler == nil {
		return nil, errors.New("consumer requires a handler")
	}
	if main == nil || secondary == nil {
		return nil, errors.New("consumer requires main and secondary streams")
	}
	c := &Consumer{
		id:        id,
		stream:    stream,
		group:     group,
		handler:   handler,
		opts:      opts,
		label:     fmt.Sprintf("%s:%s:%s", stream, group, id),
		main:      main,
		secondary: secondary,
		tracer:    opts.tracer(),
		metrics:   opts.metrics(),
	}
	c.pool = taskpool.New(opts.concurrency()).WithObserver(c.metrics.PoolState)
	return c, nil
}

// ID returns the consumer id.
func (c *Consumer) ID() string { return c.id }

// Pool exposes the consumer's task pool for inspection.
func (c *Consumer) Pool() *taskpool.Pool { return c.pool }

// Stats reports the stream length and the group's pending count.
func (c *Consumer) Stats(ctx context.Context) (length, pending int64, err error) {
	return c.secondary.Stats(ctx, c.group)
}

// Start bootstraps the group, replays this consumer's backlog and then runs the live and
// reclaim loops until ctx is done. It only fails when the group cannot be created;
// every later failure is logged and recovered through redelivery.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()
	defer c.closeSubscribers()

	if err := c.createGroup(ctx); err != nil {
		return err
	}
	c.consumePendingMessages(ctx)
	if ctx.Err() != nil {
		return nil
	}

	klog.Infof("consumer=%s start consuming messages", c.label)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.consumeNewMessages(ctx)
	}()
	go func() {
		defer wg.Done()
		c.consumeStaleMessages(ctx)
	}()
	wg.Wait()
	klog.Infof("consumer=%s stopped", c.label)
	return nil
}

// Close releases both stream connections. Call it after Start has returned.
func (c *Consumer) Close(ctx context.Context) error {
	return errors.Join(c.main.Close(ctx), c.secondary.Close(ctx))
}

func (c *Consumer) createGroup(ctx context.Context) error {
	if err := c.main.EnsureGroup(ctx, c.group, messaging.ReadFromStart); err != nil {
		klog.Errorf("consumer=%s create group failed: %v", c.label, err)
		return &GroupInitError{Stream: c.stream, Group: c.group, Err: err}
	}
	return nil
}

// consumePendingMessages replays entries already delivered to this consumer id but never
// acknowledged, in id order, until the history is exhausted.
func (c *Consumer) consumePendingMessages(ctx context.Context) {
	lastID := messaging.ReadFromStart
	for ctx.Err() == nil {
		msgs, err := c.main.ReadGroup(ctx, c.group, c.id, c.opts.fetchSize(), 0, lastID)
		if err != nil {
			if ctx.Err() == nil {
				klog.Errorf("consumer=%s read backlog after %s failed, leaving the rest to reclaim: %v", c.label, lastID, err)
			}
			return
		}
		if len(msgs) == 0 {
			return
		}
		lastID = msgs[len(msgs)-1].ID
		c.consumeMessages(ctx, msgs)
	}
}

// consumeNewMessages long-polls for entries never delivered to the group. An empty poll
// is not terminal.
func (c *Consumer) consumeNewMessages(ctx context.Context) {
	var delay time.Duration
	for ctx.Err() == nil {
		msgs, err := c.main.ReadGroup(ctx, c.group, c.id, c.opts.fetchSize(), c.opts.block(), messaging.ReadNew)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = backoffDelay(delay, readBackoffMin, readBackoffMax)
			klog.Errorf("consumer=%s read new messages failed, retrying in %s: %v", c.label, delay, err)
			if !sleepContext(ctx, delay) {
				return
			}
			continue
		}
		delay = 0
		if len(msgs) == 0 {
			continue
		}
		c.consumeMessages(ctx, msgs)
	}
}

// consumeStaleMessages walks the group-wide pending view and claims the first entry idle
// for longer than the timeout. The cursor moves past every examined page; when the view is
// exhausted the loop sleeps and starts over from the beginning.
//
// The scan examines FetchSize entries per page, so an entry that keeps landing behind a
// freshly reclaimed one can wait a full sweep before it is picked.
func (c *Consumer) consumeStaleMessages(ctx context.Context) {
	cursor := messaging.PendingMin
	for ctx.Err() == nil {
		pending, err := c.secondary.Pending(ctx, c.group, cursor, messaging.PendingMax, c.opts.fetchSize())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			klog.Errorf("consumer=%s list pending messages failed: %v", c.label, err)
			cursor = messaging.PendingMin
			if !sleepContext(ctx, c.opts.idleBackoff()) {
				return
			}
			continue
		}
		if len(pending) == 0 {
			cursor = messaging.PendingMin
			if !sleepContext(ctx, c.opts.idleBackoff()) {
				return
			}
			continue
		}
		cursor = c.advance(pending[len(pending)-1].ID)

		stale, ok := c.findStale(pending)
		if !ok {
			continue
		}
		claimed, err := c.secondary.Claim(ctx, c.group, c.id, c.opts.timeout(), stale.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.metrics.ClaimFailed()
			klog.Errorf("consumer=%s %v id=%s: %v", c.label, ErrClaim, stale.ID, err)
			continue
		}
		if len(claimed) == 0 {
			klog.V(4).Infof("consumer=%s lost claim on message[%s] to another consumer", c.label, stale.ID)
			continue
		}
		c.metrics.MessageClaimed()
		for _, m := range claimed {
			klog.Infof("consumer=%s transfer stale message[%s] from consumer[%s] idle=%s deliveries=%d",
				c.label, m.ID, stale.Consumer, stale.Idle, stale.DeliveryCount)
		}
		cursor = c.advance(claimed[len(claimed)-1].ID)
		c.consumeMessages(ctx, claimed)
	}
}

func (c *Consumer) findStale(pending []messaging.PendingMessageMetadata) (messaging.PendingMessageMetadata, bool) {
	for _, p := range pending {
		if p.Idle > c.opts.timeout() {
			return p, true
		}
	}
	return messaging.PendingMessageMetadata{}, false
}

func (c *Consumer) advance(id string) string {
	next, err := messaging.NextID(id)
	if err != nil {
		klog.Warningf("consumer=%s cannot advance pending cursor past %s, restarting scan: %v", c.label, id, err)
		return messaging.PendingMin
	}
	return next
}

// consumeMessages decodes a page and processes its entries concurrently, returning once all
// of them settled. Undecodable entries are left pending for inspection.
func (c *Consumer) consumeMessages(ctx context.Context, raw []messaging.Message) {
	var wg sync.WaitGroup
	for _, m := range raw {
		klog.V(4).Infof("consumer=%s raw message id=%s payload=%s", c.label, m.ID, m.Payload)
		msg, err := parseMessage(m)
		if err != nil {
			c.metrics.PayloadInvalid()
			klog.Errorf("consumer=%s %v", c.label, err)
			continue
		}
		wg.Add(1)
		go func(msg *Message) {
			defer wg.Done()
			c.processMessage(ctx, msg)
		}(msg)
	}
	wg.Wait()
}

func parseMessage(m messaging.Message) (*Message, error) {
	payload, err := messaging.DecodePayload(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w id=%s: %v", ErrPayloadParse, m.ID, err)
	}
	return NewMessage(m.ID, payload), nil
}

func (c *Consumer) processMessage(ctx context.Context, msg *Message) {
	ctx, span := c.tracer.Start(ctx, "consumer.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("messaging.destination.name", c.stream),
			attribute.String("messaging.consumer.group.name", c.group),
			attribute.String("messaging.consumer.id", c.id),
			attribute.String("messaging.message.id", msg.ID),
		))
	defer span.End()

	exec := c.pool.Add(func() (interface{}, error) {
		return nil, c.handler(ctx, msg)
	})
	<-exec.Done()

	if err := exec.Result().Err; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.MessageProcessed(observability.OutcomeError)
		klog.Warningf("consumer=%s handler failed for message[%s]: %v", c.label, msg.ID, err)
		c.emit(ctx, Event{Message: msg, Err: &HandlerError{MessageID: msg.ID, Err: err}})
	} else {
		c.metrics.MessageProcessed(observability.OutcomeSuccess)
		c.emit(ctx, Event{Message: msg})
	}

	// the ack must go out even when the consumer is stopping
	c.ackMessage(context.WithoutCancel(ctx), msg.ID)
}

func (c *Consumer) ackMessage(ctx context.Context, id string) {
	if err := c.secondary.Ack(ctx, c.group, id); err != nil {
		c.metrics.AckFailed()
		klog.Errorf("consumer=%s %v id=%s: %v", c.label, ErrAck, id, err)
		return
	}
	klog.V(2).Infof("consumer=%s message acknowledged: %s", c.label, id)
}

func backoffDelay(current, min, max time.Duration) time.Duration {
	if current < min {
		return min
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
