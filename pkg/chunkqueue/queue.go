// Package chunkqueue implements the single-flight node-task coordinator
// of §4.7 on top of golang.org/x/sync/singleflight: at most one fetch is
// ever in flight per node index, and every concurrent caller for that
// node blocks on the same result.
package chunkqueue

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Queue coalesces concurrent requests for the same node index and caps
// the number of node-tasks actually in flight.
type Queue struct {
	sf  singleflight.Group
	sem chan struct{}
}

// New creates a Queue allowing up to maxConcurrent node-tasks in flight
// at once; additional tasks queue FIFO behind the semaphore, per §4.7's
// backpressure requirement.
func New(maxConcurrent int) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{sem: make(chan struct{}, maxConcurrent)}
}

// Do runs fn at most once for nodeIndex among all concurrent callers; a
// caller joining an in-flight task receives the same result the leader
// produces, without itself consuming a backpressure slot.
func (q *Queue) Do(ctx context.Context, nodeIndex int64, fn func(ctx context.Context) error) error {
	key := strconv.FormatInt(nodeIndex, 10)
	_, err, _ := q.sf.Do(key, func() (any, error) {
		select {
		case q.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-q.sem }()
		return nil, fn(ctx)
	})
	return err
}
