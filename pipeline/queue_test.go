package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"imageforge/logging"
)

func collectOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case outcome := <-ch:
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestQueue_ProcessesInArrivalOrder(t *testing.T) {
	var mu sync.Mutex
	var processed []string

	handler := func(ctx context.Context, req *GenerationRequest) Outcome {
		mu.Lock()
		processed = append(processed, req.RequestID)
		mu.Unlock()
		return Outcome{RequestID: req.RequestID, State: StateSucceeded}
	}

	q, err := NewQueue(handler, logging.NewNop(), QueueConfig{Capacity: 10})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	// Enqueue before starting the worker so all entries are buffered
	var results []<-chan Outcome
	for i := 0; i < 5; i++ {
		ch, err := q.Enqueue(&GenerationRequest{RequestID: fmt.Sprintf("req-%d", i)})
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		results = append(results, ch)
	}

	q.Start()
	defer q.Stop()

	for _, ch := range results {
		collectOutcome(t, ch)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, id := range processed {
		want := fmt.Sprintf("req-%d", i)
		if id != want {
			t.Errorf("processed[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestQueue_FullReturnsError(t *testing.T) {
	handler := func(ctx context.Context, req *GenerationRequest) Outcome {
		return Outcome{RequestID: req.RequestID, State: StateSucceeded}
	}

	q, err := NewQueue(handler, logging.NewNop(), QueueConfig{Capacity: 1})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	// Worker not started, so the single buffer slot stays occupied

	if _, err := q.Enqueue(&GenerationRequest{RequestID: "first"}); err != nil {
		t.Fatalf("Enqueue() error = %v, want nil", err)
	}
	if _, err := q.Enqueue(&GenerationRequest{RequestID: "second"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() error = %v, want ErrQueueFull", err)
	}
}

func TestQueue_PanicFailsOnlyThatEntry(t *testing.T) {
	handler := func(ctx context.Context, req *GenerationRequest) Outcome {
		if req.RequestID == "boom" {
			panic("handler exploded")
		}
		return Outcome{RequestID: req.RequestID, State: StateSucceeded}
	}

	q, err := NewQueue(handler, logging.NewNop(), QueueConfig{Capacity: 10})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	q.Start()
	defer q.Stop()

	boomCh, err := q.Enqueue(&GenerationRequest{RequestID: "boom"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	okCh, err := q.Enqueue(&GenerationRequest{RequestID: "ok"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	boom := collectOutcome(t, boomCh)
	if boom.State != StateFailed {
		t.Errorf("panicked entry state = %s, want %s", boom.State, StateFailed)
	}
	if boom.Err == nil {
		t.Error("panicked entry Err = nil, want error")
	}

	ok := collectOutcome(t, okCh)
	if ok.State != StateSucceeded {
		t.Errorf("subsequent entry state = %s, want %s", ok.State, StateSucceeded)
	}
}

func TestQueue_AcceptedEntriesResolveDuringStop(t *testing.T) {
	handler := func(ctx context.Context, req *GenerationRequest) Outcome {
		return Outcome{RequestID: req.RequestID, State: StateSucceeded}
	}

	q, err := NewQueue(handler, logging.NewNop(), QueueConfig{Capacity: 100})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	q.Start()

	// Enqueue continuously while Stop runs; every accepted entry must still
	// get an outcome even if it raced the shutdown
	var mu sync.Mutex
	var accepted []<-chan Outcome
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			ch, err := q.Enqueue(&GenerationRequest{RequestID: fmt.Sprintf("req-%d", i)})
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, ch)
			mu.Unlock()
		}
	}()

	time.Sleep(5 * time.Millisecond)
	q.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(accepted) == 0 {
		t.Fatal("no entries were accepted before Stop()")
	}
	for i, ch := range accepted {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("accepted entry %d of %d never resolved", i, len(accepted))
		}
	}
}

func TestQueue_StopDrainsQueuedEntries(t *testing.T) {
	handler := func(ctx context.Context, req *GenerationRequest) Outcome {
		return Outcome{RequestID: req.RequestID, State: StateSucceeded}
	}

	q, err := NewQueue(handler, logging.NewNop(), QueueConfig{Capacity: 10})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	ch, err := q.Enqueue(&GenerationRequest{RequestID: "queued-before-stop"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	q.Start()
	q.Stop()

	outcome := collectOutcome(t, ch)
	if outcome.State != StateSucceeded {
		t.Errorf("drained entry state = %s, want %s", outcome.State, StateSucceeded)
	}

	if _, err := q.Enqueue(&GenerationRequest{RequestID: "after-stop"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after Stop error = %v, want ErrQueueClosed", err)
	}
}
