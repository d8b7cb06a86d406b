// Package loop runs every state mutation on one goroutine, one step at a time.
package loop

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted to a loop that is not running
var ErrStopped = errors.New("control loop stopped")

// Loop is the single logical control thread
type Loop struct {
	tasks chan func()
	done  chan struct{}
	log   *zap.Logger
}

// New creates a loop with a task queue of the given size
func New(queue int, log *zap.Logger) *Loop {
	return &Loop{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
		log:   log.Named("loop"),
	}
}

// Run executes tasks until ctx is cancelled. Tasks still queued at that point
// are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			l.step(fn)
		}
	}
}

// step runs one task; a panic is logged and never escapes the loop
func (l *Loop) step(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("control step panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Post queues fn without waiting for it. It never blocks, so steps running on
// the loop may post follow-up work; when the queue is full the task is handed
// over from a new goroutine and may run after tasks posted later.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
		return
	case <-l.done:
		return
	default:
	}
	go func() {
		select {
		case l.tasks <- fn:
		case <-l.done:
		}
	}()
}

// Do runs fn on the loop and waits for its result
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("control step panicked: %v", r)
				panic(r)
			}
		}()
		result <- fn()
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
