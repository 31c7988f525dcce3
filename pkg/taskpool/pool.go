package taskpool

import (
	"context"
	"sync"
)

// DefaultConcurrency is the running ceiling used when New is given a non-positive value.
const DefaultConcurrency = 5

// Pool caps how many tasks run at once. Admission never blocks or rejects: tasks beyond the
// ceiling wait in an unbounded queue. When a slot frees, the most recently queued task is
// promoted first (LIFO among queued tasks), so submission order does not survive into
// execution order once the pool is saturated.
type Pool struct {
	concurrency int

	mu      sync.Mutex
	queue   []*Executor
	running int

	// observe, when set, is called under mu with the running and queued counts after every
	// change, so snapshots are published in the order they were taken.
	observe func(running, queued int)
}

// New creates a pool that runs at most concurrency tasks at a time.
func New(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pool{concurrency: concurrency}
}

// WithObserver registers fn to receive running/queued counts whenever they change.
// It must be called before the pool is used. fn runs while the pool is locked, so it must
// be quick and must not call back into the pool.
func (p *Pool) WithObserver(fn func(running, queued int)) *Pool {
	p.observe = fn
	return p
}

// Concurrency returns the running ceiling.
func (p *Pool) Concurrency() int { return p.concurrency }

// Add queues task and returns its executor, which settles with the task's own outcome.
func (p *Pool) Add(task Task) *Executor {
	exec := NewExecutor(task)
	p.mu.Lock()
	p.queue = append(p.queue, exec)
	p.mu.Unlock()
	p.schedule()
	return exec
}

// Do queues task and waits for its outcome. If ctx ends first, Do returns ctx.Err();
// the task itself is not interrupted and still occupies its slot until it returns.
func (p *Pool) Do(ctx context.Context, task Task) (interface{}, error) {
	exec := p.Add(task)
	select {
	case <-exec.Done():
		r := exec.Result()
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run is a typed wrapper around Pool.Do.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	v, err := p.Do(ctx, func() (interface{}, error) { return fn() })
	if err != nil {
		if typed, ok := v.(T); ok {
			return typed, err
		}
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queued returns the number of tasks waiting for a slot.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) schedule() {
	var started []*Executor
	p.mu.Lock()
	for p.running < p.concurrency && len(p.queue) > 0 {
		last := len(p.queue) - 1
		exec := p.queue[last]
		p.queue[last] = nil
		p.queue = p.queue[:last]
		p.running++
		started = append(started, exec)
	}
	if p.observe != nil {
		p.observe(p.running, len(p.queue))
	}
	p.mu.Unlock()

	for _, exec := range started {
		exec.OnComplete(func(Result) { p.release() })
		go exec.Execute()
	}
}

func (p *Pool) release() {
	p.mu.Lock()
	p.running--
	p.mu.Unlock()
	p.schedule()
}
