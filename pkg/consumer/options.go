package consumer

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"StreamMin-Cli/pkg/observability"
	"StreamMin-Cli/pkg/taskpool"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultFetchSize   = 1
	DefaultBlock       = time.Second
	DefaultIdleBackoff = time.Second

	readBackoffMin = 200 * time.Millisecond
	readBackoffMax = 5 * time.Second
)

// Options tunes a Consumer. Zero values fall back to the defaults above.
type Options struct {
	// Timeout is how long an entry may stay pending before another consumer reclaims it.
	Timeout time.Duration
	// FetchSize is the number of entries requested per poll.
	FetchSize int
	// Concurrency caps how many handlers run at once.
	Concurrency int
	// Block is how long a live poll waits for new entries.
	Block time.Duration
	// IdleBackoff is how long the reclaim loop sleeps when nothing is pending.
	IdleBackoff time.Duration

	Tracer  trace.Tracer
	Metrics observability.ConsumerMetrics
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o Options) fetchSize() int {
	if o.FetchSize > 0 {
		return o.FetchSize
	}
	return DefaultFetchSize
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return taskpool.DefaultConcurrency
}

func (o Options) block() time.Duration {
	if o.Block > 0 {
		return o.Block
	}
	return DefaultBlock
}

func (o Options) idleBackoff() time.Duration {
	if o.IdleBackoff > 0 {
		return o.IdleBackoff
	}
	return DefaultIdleBackoff
}

func (o Options) tracer() trace.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	return observability.Tracer()
}

func (o Options) metrics() observability.ConsumerMetrics {
	if o.Metrics != nil {
		return o.Metrics
	}
	return observability.NewNopMetrics()
}
