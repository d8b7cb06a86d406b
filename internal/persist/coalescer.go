package persist

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coalescer turns a burst of Schedule calls into one write. The first Schedule
// after a write arms a timer; every value scheduled before it fires replaces
// the pending one, and only the latest is written.
type Coalescer[T any] struct {
	delay time.Duration
	write func(T) error
	log   *zap.Logger

	mu      sync.Mutex
	value   T
	pending bool
	timer   *time.Timer
	stopped bool

	writeMu sync.Mutex
}

// NewCoalescer creates a coalescing writer
func NewCoalescer[T any](delay time.Duration, write func(T) error, log *zap.Logger) *Coalescer[T] {
	return &Coalescer[T]{
		delay: delay,
		write: write,
		log:   log,
	}
}

// Schedule records v as the value to write at the end of the current window
func (c *Coalescer[T]) Schedule(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.value = v
	c.pending = true
	if c.timer == nil {
		c.timer = time.AfterFunc(c.delay, func() { _ = c.Flush() })
	}
}

// Flush writes the pending value now, if there is one
func (c *Coalescer[T]) Flush() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.pending {
		c.mu.Unlock()
		return nil
	}
	v := c.value
	c.pending = false
	var zero T
	c.value = zero
	c.mu.Unlock()

	if err := c.write(v); err != nil {
		c.log.Error("coalesced write failed", zap.Error(err))
		return err
	}
	return nil
}

// Pending reports whether a write is waiting
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Stop flushes whatever is pending and ignores later Schedule calls
func (c *Coalescer[T]) Stop() error {
	err := c.Flush()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	return err
}

// DiscardAfter runs fn while no write is in flight. When fn succeeds the
// pending value is dropped and later Schedule calls are ignored; when it fails
// the coalescer keeps running and fn's error is returned.
func (c *Coalescer[T]) DiscardAfter(fn func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := fn(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	var zero T
	c.value = zero
	c.pending = false
	c.stopped = true
	return nil
}
