// queue.go implements the bounded FIFO work queue. A single worker goroutine
// processes entries in arrival order, and each entry carries a one-shot
// result channel its submitter waits on.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"imageforge/logging"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the queue has no capacity for a new entry.
var ErrQueueFull = fmt.Errorf("pipeline: queue is full")

// ErrQueueClosed is returned when enqueueing after shutdown has begun.
var ErrQueueClosed = fmt.Errorf("pipeline: queue is closed")

// Handler processes one request to completion.
type Handler func(ctx context.Context, req *GenerationRequest) Outcome

// entry pairs a request with the channel its submitter is waiting on.
// The channel is buffered so the worker never blocks on delivery.
type entry struct {
	req    *GenerationRequest
	result chan Outcome
}

// Queue is a bounded FIFO queue with a single worker goroutine.
//
// One worker means entries start processing strictly in arrival order.
// Enqueue never blocks: when the buffer is full the caller gets ErrQueueFull
// immediately rather than stalling the HTTP handler.
type Queue struct {
	entries chan entry
	handler Handler
	logger  *logging.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// QueueConfig holds configuration for the Queue.
type QueueConfig struct {
	// Capacity bounds how many requests may wait (default: 100)
	Capacity int
}

// DefaultQueueConfig returns sensible queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Capacity: 100}
}

// NewQueue creates a Queue that runs handler for each entry.
func NewQueue(handler Handler, logger *logging.Logger, config QueueConfig) (*Queue, error) {
	if handler == nil {
		return nil, fmt.Errorf("pipeline: handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("pipeline: logger cannot be nil")
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultQueueConfig().Capacity
	}

	return &Queue{
		entries: make(chan entry, config.Capacity),
		handler: handler,
		logger:  logger.Named("queue"),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the worker goroutine. Safe to call once.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.work()
}

// Enqueue adds a request and returns a channel that will receive exactly one
// Outcome when processing completes. Returns ErrQueueFull when the buffer has
// no room and ErrQueueClosed after shutdown begins.
//
// The closed check and the channel send happen under one lock acquisition.
// Stop takes the same lock before draining, so an accepted entry is in the
// buffer before shutdown begins and is guaranteed to be drained.
func (q *Queue) Enqueue(req *GenerationRequest) (<-chan Outcome, error) {
	e := entry{req: req, result: make(chan Outcome, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	req.EnqueuedAt = time.Now()

	select {
	case q.entries <- e:
	default:
		q.mu.Unlock()
		return nil, ErrQueueFull
	}
	depth := len(q.entries)
	q.mu.Unlock()

	q.logger.Debug("request enqueued",
		zap.String("request_id", req.RequestID),
		zap.Int("depth", depth))
	return e.result, nil
}

// Depth returns the number of waiting entries.
func (q *Queue) Depth() int {
	return len(q.entries)
}

// Stop closes the queue, drains remaining entries, and waits for the worker
// to finish. Submitters of drained entries still receive their outcomes.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	started := q.started
	q.mu.Unlock()

	close(q.done)
	if started {
		q.wg.Wait()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case e := <-q.entries:
			q.process(e)
		case <-q.done:
			q.drain()
			return
		}
	}
}

// drain finishes entries already accepted before shutdown began.
func (q *Queue) drain() {
	for {
		select {
		case e := <-q.entries:
			q.process(e)
		default:
			return
		}
	}
}

// process runs one entry through the handler. A panic in the handler fails
// that entry alone; the worker keeps serving the queue.
func (q *Queue) process(e entry) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("handler panicked",
				zap.String("request_id", e.req.RequestID),
				zap.Any("panic", r))
			e.result <- Outcome{
				RequestID: e.req.RequestID,
				State:     StateFailed,
				Duration:  time.Since(e.req.EnqueuedAt),
				Err:       fmt.Errorf("pipeline: internal error processing request"),
			}
		}
	}()

	outcome := q.handler(context.Background(), e.req)
	e.result <- outcome
}
