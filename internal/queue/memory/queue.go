// Package memory provides the in-process crawl task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// Queue is a bounded in-memory queue with context-aware operations.
// Capacity is the buffer between the submit handler and the worker pool:
// submits beyond it block on Enqueue rather than launching more browsers.
type Queue struct {
	ch      chan claims.CrawlTask
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan claims.CrawlTask, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task claims.CrawlTask) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (claims.CrawlTask, error) {
	select {
	case <-ctx.Done():
		return claims.CrawlTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return claims.CrawlTask{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
