package taskpool

import (
	"fmt"
	"sync"
)

// Task is one deferred unit of work.
type Task func() (interface{}, error)

// Result is the outcome of a Task: Err is nil on success.
type Result struct {
	Value interface{}
	Err   error
}

// OK reports whether the task succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Executor runs exactly one Task and records its outcome. Success or error is recorded
// exactly once, after which completion fires once: hooks registered with OnComplete run,
// then Done is closed.
type Executor struct {
	task Task

	once       sync.Once
	done       chan struct{}
	mu         sync.Mutex
	result     Result
	completed  bool
	onComplete []func(Result)
}

// NewExecutor wraps task.
func NewExecutor(task Task) *Executor {
	return &Executor{task: task, done: make(chan struct{})}
}

// OnComplete registers fn to run when the executor completes. Registering after
// completion runs fn immediately.
func (e *Executor) OnComplete(fn func(Result)) {
	e.mu.Lock()
	if e.completed {
		res := e.result
		e.mu.Unlock()
		fn(res)
		return
	}
	e.onComplete = append(e.onComplete, fn)
	e.mu.Unlock()
}

// Execute runs the task. Calls after the first are no-ops.
func (e *Executor) Execute() {
	e.once.Do(func() {
		res := e.run()
		e.mu.Lock()
		e.result = res
		e.completed = true
		hooks := e.onComplete
		e.onComplete = nil
		e.mu.Unlock()
		for _, fn := range hooks {
			fn(res)
		}
		close(e.done)
	})
}

func (e *Executor) run() (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	if e.task == nil {
		return Result{}
	}
	v, err := e.task()
	return Result{Value: v, Err: err}
}

// Done is closed once the task has completed.
func (e *Executor) Done() <-chan struct{} { return e.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (e *Executor) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Wait blocks until the task completes and returns its outcome.
func (e *Executor) Wait() (interface{}, error) {
	<-e.done
	r := e.Result()
	return r.Value, r.Err
}
