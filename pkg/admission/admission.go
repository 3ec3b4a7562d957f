// Package admission implements the global concurrency queue (C8): a simple
// counting semaphore bounding how many whole-file downloads may be active
// at once across a process, independent of and unrelated to the per-file
// block concurrency pkg/pipeline and pkg/thumbnails enforce locally. A
// single admission.Queue is shared by every file download started through
// one pkg/drivecore.Module so one caller opening many downloads cannot
// starve another; seekable streams and thumbnail iteration do not use it.
package admission

import "context"

// DefaultCapacity is MAX_CONCURRENT_DOWNLOADS: the number of whole-file
// downloads admitted to run at once when a caller does not override it.
const DefaultCapacity = 5

// Queue bounds concurrent admission to a fixed capacity.
type Queue struct {
	tokens chan struct{}
}

// New returns a Queue that admits at most capacity concurrent holders.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{tokens: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is canceled.
func (q *Queue) Acquire(ctx context.Context) error {
	select {
	case q.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees one slot. Calling Release without a matching successful
// Acquire frees a slot some other holder still owns or, when no slot is
// held, blocks until one is acquired; callers only release what they
// acquired.
func (q *Queue) Release() {
	<-q.tokens
}

// Capacity returns the queue's admission limit.
func (q *Queue) Capacity() int {
	return cap(q.tokens)
}

// InUse returns the number of currently held slots.
func (q *Queue) InUse() int {
	return len(q.tokens)
}
