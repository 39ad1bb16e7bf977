package db

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TagUpdate is a queued tag write produced by the tagging service.
type TagUpdate struct {
	ImageID  string
	Tags     []string
	Metadata string
	TaggedAt time.Time
}

// TagUpdateHandler applies a single tag update to the metadata store.
type TagUpdateHandler func(ctx context.Context, update TagUpdate) error

// AsyncTagWriter decouples tag enrichment from database writes. Updates are
// buffered on a channel and applied by a single background goroutine, so a
// slow SQLite write never blocks the tagging goroutines that produce them.
//
// Usage:
//
//	writer := NewAsyncTagWriter(100, repo.applyTagUpdate, logger)
//	writer.Start()
//	defer writer.Stop()
//
//	writer.Write(TagUpdate{ImageID: id, Tags: tags, TaggedAt: time.Now()})
type AsyncTagWriter struct {
	updates chan TagUpdate
	handler TagUpdateHandler
	logger  Logger

	started bool
	done    chan struct{}
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// Logger is the minimal logging surface the writer needs. The logging
// package's *Logger satisfies it.
type Logger interface {
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// NewAsyncTagWriter creates an AsyncTagWriter with the given buffer size.
// A bufferSize of 0 or less defaults to 100.
func NewAsyncTagWriter(bufferSize int, handler TagUpdateHandler, logger Logger) *AsyncTagWriter {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &AsyncTagWriter{
		updates: make(chan TagUpdate, bufferSize),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the background write goroutine. Safe to call once.
func (w *AsyncTagWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processUpdates()
}

// Write enqueues a tag update. If the writer is not started or the buffer is
// full, the update is applied synchronously so enrichment is never lost.
func (w *AsyncTagWriter) Write(update TagUpdate) error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if !started {
		return w.apply(update)
	}

	select {
	case w.updates <- update:
		return nil
	default:
		if w.logger != nil {
			w.logger.Warnf("db: tag update buffer full, writing synchronously (image_id=%s)", update.ImageID)
		}
		return w.apply(update)
	}
}

// Pending returns the number of buffered updates not yet applied.
func (w *AsyncTagWriter) Pending() int {
	return len(w.updates)
}

// IsStarted reports whether the background goroutine is running.
func (w *AsyncTagWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Stop drains any buffered updates and stops the background goroutine.
// Blocks until the drain completes.
func (w *AsyncTagWriter) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
}

// StopWithTimeout stops the writer, waiting at most timeout for the drain.
// Returns an error if the drain did not finish in time.
func (w *AsyncTagWriter) StopWithTimeout(timeout time.Duration) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	close(w.done)

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("db: async tag writer did not drain within %v (%d pending)", timeout, w.Pending())
	}
}

func (w *AsyncTagWriter) processUpdates() {
	defer w.wg.Done()
	for {
		select {
		case update := <-w.updates:
			if err := w.apply(update); err != nil && w.logger != nil {
				w.logger.Errorf("db: async tag write failed (image_id=%s): %v", update.ImageID, err)
			}
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain applies everything left in the buffer after shutdown is requested.
func (w *AsyncTagWriter) drain() {
	for {
		select {
		case update := <-w.updates:
			if err := w.apply(update); err != nil && w.logger != nil {
				w.logger.Errorf("db: tag write failed during drain (image_id=%s): %v", update.ImageID, err)
			}
		default:
			return
		}
	}
}

func (w *AsyncTagWriter) apply(update TagUpdate) error {
	if w.handler == nil {
		return fmt.Errorf("db: async tag writer has no handler")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.handler(ctx, update)
}
