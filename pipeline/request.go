// Package pipeline implements the generation request flow: validation,
// queueing, provider dispatch, and durable persistence.
package pipeline

import (
	"time"
)

// Request states, in lifecycle order.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateSucceeded  = "succeeded"
	StateFailed     = "failed"
)

// GenerationRequest is one validated image generation job.
type GenerationRequest struct {
	// RequestID uniquely identifies the request across logs and results
	RequestID string

	// Prompt is the text prompt sent to the provider
	Prompt string

	// Original is the user's text before any client-side rewriting
	Original string

	// PromptID optionally links the request to a saved prompt
	PromptID string

	// Providers are the requested provider names; one is chosen at dispatch
	Providers []string

	// Guidance is the requested guidance value, defaulted if absent
	Guidance int

	// UserID identifies the requester ("" for anonymous)
	UserID string

	// EnqueuedAt is when the request entered the queue
	EnqueuedAt time.Time
}

// ProviderResult is the per-provider outcome included in the response.
type ProviderResult struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	ImageID  string `json:"imageId,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Model    string `json:"model,omitempty"`
	Guidance int    `json:"guidance,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Outcome is the completed result of a generation request.
type Outcome struct {
	// RequestID echoes the request id
	RequestID string

	// State is StateSucceeded or StateFailed
	State string

	// Results holds one entry per dispatched provider (currently always one)
	Results []ProviderResult

	// Duration is the time from enqueue to completion
	Duration time.Duration

	// Err is the terminal error for failed requests
	Err error
}
