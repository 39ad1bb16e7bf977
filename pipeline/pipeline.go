// pipeline.go wires dispatch, persistence, and tagging into the queue
// worker and exposes Submit as the single entry point for validated requests.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"imageforge/logging"
	"imageforge/metrics"
	"imageforge/providers"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tagger enriches a stored image asynchronously. The meta map carries the
// generation context for the tagging record. Implementations must return
// immediately; all work and all failures stay inside the tagger.
type Tagger interface {
	TagAsync(imageID, prompt string, meta map[string]interface{})
}

// Pipeline runs validated generation requests through dispatch, persistence,
// and tagging.
//
// Submit is non-blocking: it enqueues the request and returns a channel that
// delivers the Outcome when the queue worker finishes it.
type Pipeline struct {
	queue       *Queue
	dispatcher  *providers.Dispatcher
	coordinator *Coordinator
	tagger      Tagger
	metrics     metrics.Metrics
	logger      *logging.Logger
}

// PipelineConfig holds configuration for the Pipeline.
type PipelineConfig struct {
	// QueueCapacity bounds the number of waiting requests (default: 100)
	QueueCapacity int
}

// NewPipeline assembles the generation pipeline. The tagger may be nil, in
// which case enrichment is skipped.
func NewPipeline(dispatcher *providers.Dispatcher, coordinator *Coordinator, tagger Tagger, m metrics.Metrics, logger *logging.Logger, config PipelineConfig) (*Pipeline, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("pipeline: dispatcher cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("pipeline: coordinator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("pipeline: logger cannot be nil")
	}
	if m == nil {
		m = metrics.Noop{}
	}

	p := &Pipeline{
		dispatcher:  dispatcher,
		coordinator: coordinator,
		tagger:      tagger,
		metrics:     m,
		logger:      logger.Named("pipeline"),
	}

	queue, err := NewQueue(p.handle, logger, QueueConfig{Capacity: config.QueueCapacity})
	if err != nil {
		return nil, err
	}
	p.queue = queue

	return p, nil
}

// Start launches the queue worker.
func (p *Pipeline) Start() {
	p.queue.Start()
}

// Stop drains the queue and stops the worker. In-flight and already-queued
// requests complete; new submissions are rejected.
func (p *Pipeline) Stop() {
	p.queue.Stop()
}

// Submit enqueues a validated request. A missing RequestID is assigned.
// The returned channel delivers exactly one Outcome.
func (p *Pipeline) Submit(req *GenerationRequest) (<-chan Outcome, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	result, err := p.queue.Enqueue(req)
	if err != nil {
		return nil, err
	}
	p.metrics.IncEnqueued()
	return result, nil
}

// QueueDepth returns the number of waiting requests.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Depth()
}

// handle processes one dequeued request: dispatch to a provider, persist the
// result, then hand off to tagging. Runs on the queue worker goroutine.
func (p *Pipeline) handle(ctx context.Context, req *GenerationRequest) Outcome {
	log := p.logger.With(zap.String("request_id", req.RequestID))
	log.Info("processing request",
		zap.Strings("providers", req.Providers),
		zap.Int("guidance", req.Guidance))

	result := p.dispatcher.Dispatch(ctx, req.Providers, providers.Params{
		Prompt:   req.Prompt,
		Guidance: req.Guidance,
		UserID:   req.UserID,
	})

	if !result.Success {
		p.metrics.IncCompleted(result.Provider, "error")
		log.Warn("generation failed", zap.Error(result.Err))
		return Outcome{
			RequestID: req.RequestID,
			State:     StateFailed,
			Results: []ProviderResult{{
				Provider: result.Provider,
				Success:  false,
				Error:    errMessage(result.Err),
			}},
			Duration: time.Since(req.EnqueuedAt),
			Err:      result.Err,
		}
	}

	record, err := p.coordinator.Persist(ctx, req, result.Provider, result.Output.Model, result.Output.Guidance, result.Output.Data)
	if err != nil {
		p.metrics.IncCompleted(result.Provider, "persist_error")
		log.Error("persistence failed", zap.Error(err))
		return Outcome{
			RequestID: req.RequestID,
			State:     StateFailed,
			Results: []ProviderResult{{
				Provider: result.Provider,
				Success:  false,
				Error:    errMessage(err),
			}},
			Duration: time.Since(req.EnqueuedAt),
			Err:      err,
		}
	}

	// Tagging is fire-and-forget; the response never waits on it
	if p.tagger != nil {
		p.tagger.TagAsync(record.ID, req.Prompt, map[string]interface{}{
			"provider": result.Provider,
			"model":    record.Model,
			"guidance": record.Guidance,
		})
	}

	p.metrics.IncCompleted(result.Provider, "success")
	return Outcome{
		RequestID: req.RequestID,
		State:     StateSucceeded,
		Results: []ProviderResult{{
			Provider: result.Provider,
			Success:  true,
			ImageID:  record.ID,
			ImageURL: record.ImageURL,
			Model:    record.Model,
			Guidance: record.Guidance,
		}},
		Duration: time.Since(req.EnqueuedAt),
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
