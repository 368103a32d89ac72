package cloudbackend

import (
	"context"
	"sync"
)

// Executor runs handler callbacks in the context the application expects to
// observe them from.
type Executor interface {
	Execute(fn func())
}

// InlineExecutor runs callbacks on the worker goroutine that finished the
// call. Callbacks of different calls may then run concurrently.
type InlineExecutor struct{}

func (InlineExecutor) Execute(fn func()) {
	fn()
}

// LoopExecutor queues callbacks and runs them one at a time on the goroutine
// that calls Run, like a UI event loop. The queue is unbounded so workers
// never block on a slow loop.
type LoopExecutor struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

func NewLoopExecutor() *LoopExecutor {
	return &LoopExecutor{notify: make(chan struct{}, 1)}
}

func (l *LoopExecutor) Execute(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Run executes queued callbacks until ctx is done. Callbacks still queued
// at that point are discarded.
func (l *LoopExecutor) Run(ctx context.Context) error {
	for {
		for _, fn := range l.drain() {
			fn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Pending returns the number of queued callbacks.
func (l *LoopExecutor) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *LoopExecutor) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queue
	l.queue = nil
	return q
}
