// Package control implements the download controller (C4): a cooperative
// pause/resume latch plus a single completion signal a caller can wait on,
// independent of the reassembly engine's internal concurrency.
package control

import (
	"context"
	"sync"
)

// Controller coordinates pausing and resuming an in-flight download and
// reports its terminal outcome exactly once. Pausing is cooperative: it
// does not cancel in-flight block fetches, it only blocks new work from
// starting until Resume is called.
type Controller struct {
	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}

	done chan struct{}
	err  error
	once sync.Once
}

// New returns a running, unpaused Controller.
func New() *Controller {
	return &Controller{
		resumeCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Pause blocks new block tasks from starting. It is idempotent: pausing an
// already-paused controller is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// Resume releases any task blocked in WaitWhilePaused. It is idempotent.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
}

// IsPaused reports the current pause state.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// WaitWhilePaused blocks until the controller is resumed, the download
// finishes, or ctx is canceled, whichever happens first.
func (c *Controller) WaitWhilePaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		resumeCh := c.resumeCh
		c.mu.Unlock()

		select {
		case <-resumeCh:
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Finish records the download's terminal outcome. Only the first call has
// an effect; later calls are no-ops, so any goroutine racing to report
// completion can call it unconditionally.
func (c *Controller) Finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed once Finish has been called.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the error Finish was called with, valid only after Done is
// closed.
func (c *Controller) Err() error {
	<-c.done
	return c.err
}
