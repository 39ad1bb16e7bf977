// Package tagging enriches stored images with descriptive tags using a chat
// completion model. Enrichment is fire-and-forget: the generation response
// never waits on it and no tagging failure can fail a stored image.
package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"imageforge/db"
	"imageforge/logging"
	"imageforge/metrics"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// tagPrompt instructs the model to return a bare JSON array.
const tagPrompt = `Generate 3 to 8 short descriptive tags for an image created from the following prompt. Respond with only a JSON array of lowercase strings, no other text.

Prompt: %s`

// ChatCompleter is the subset of the OpenAI client the tagger uses.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Tagger generates tags for stored images in detached goroutines and writes
// them through the async tag writer.
type Tagger struct {
	client  ChatCompleter
	writer  *db.AsyncTagWriter
	model   string
	timeout time.Duration
	logger  *logging.Logger
	metrics metrics.Metrics

	wg sync.WaitGroup
}

// TaggerConfig holds configuration for the Tagger.
type TaggerConfig struct {
	// Model is the chat model used for tag generation (default: gpt-4o-mini)
	Model string

	// Timeout bounds each tagging call (default: 30s)
	Timeout time.Duration
}

// DefaultTaggerConfig returns sensible tagging defaults.
func DefaultTaggerConfig() TaggerConfig {
	return TaggerConfig{
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// NewTagger creates a Tagger writing through the given async writer.
func NewTagger(client ChatCompleter, writer *db.AsyncTagWriter, logger *logging.Logger, m metrics.Metrics, config TaggerConfig) (*Tagger, error) {
	if client == nil {
		return nil, fmt.Errorf("tagging: chat client cannot be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("tagging: tag writer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("tagging: logger cannot be nil")
	}
	if m == nil {
		m = metrics.Noop{}
	}

	defaults := DefaultTaggerConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Tagger{
		client:  client,
		writer:  writer,
		model:   config.Model,
		timeout: config.Timeout,
		logger:  logger.Named("tagging"),
		metrics: m,
	}, nil
}

// TagAsync starts enrichment for a stored image and returns immediately.
// The meta map is recorded in the tagging metadata alongside the model and
// call duration. All failures are logged and counted; none propagate to the
// caller.
func (t *Tagger) TagAsync(imageID, prompt string, meta map[string]interface{}) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("tagging goroutine panicked",
					zap.String("image_id", imageID),
					zap.Any("panic", r))
				t.metrics.IncTagging("panic")
			}
		}()
		t.tag(imageID, prompt, meta)
	}()
}

// Wait blocks until in-flight tagging goroutines finish or the timeout
// elapses. Used during shutdown; tagging left unfinished is simply lost,
// which the enrichment contract allows.
func (t *Tagger) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *Tagger) tag(imageID, prompt string, meta map[string]interface{}) {
	log := t.logger.With(zap.String("image_id", imageID))

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	start := time.Now()
	response, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(tagPrompt, prompt),
		}},
	})
	if err != nil {
		log.Warn("tagging call failed", zap.Error(err))
		t.metrics.IncTagging("error")
		return
	}
	if len(response.Choices) == 0 {
		log.Warn("tagging returned no choices")
		t.metrics.IncTagging("error")
		return
	}

	tags, err := parseTags(response.Choices[0].Message.Content)
	if err != nil {
		log.Warn("failed to parse tags", zap.Error(err))
		t.metrics.IncTagging("parse_error")
		return
	}

	fields := make(map[string]interface{}, len(meta)+2)
	for k, v := range meta {
		fields[k] = v
	}
	fields["model"] = t.model
	fields["duration_ms"] = time.Since(start).Milliseconds()
	metadata, _ := json.Marshal(fields)

	if err := t.writer.Write(db.TagUpdate{
		ImageID:  imageID,
		Tags:     tags,
		Metadata: string(metadata),
		TaggedAt: time.Now().UTC(),
	}); err != nil {
		log.Warn("failed to queue tag update", zap.Error(err))
		t.metrics.IncTagging("write_error")
		return
	}

	log.Debug("image tagged", zap.Strings("tags", tags))
	t.metrics.IncTagging("success")
}

// parseTags extracts a JSON string array from a model response, tolerating
// markdown code fences around the payload.
func parseTags(content string) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var tags []string
	if err := json.Unmarshal([]byte(trimmed), &tags); err != nil {
		return nil, fmt.Errorf("tagging: response is not a JSON string array: %w", err)
	}

	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("tagging: response contained no usable tags")
	}
	return cleaned, nil
}
