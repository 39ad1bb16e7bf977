// Package providers implements image generation backends and the dispatcher
// that selects between them for each request.
package providers

import (
	"context"
)

// Params carries everything a backend needs to generate one image.
type Params struct {
	// Prompt is the text prompt sent to the backend
	Prompt string
	// Guidance controls how closely the backend follows the prompt.
	// Backends that bound guidance differently clamp it and report the
	// value actually used in Output.Guidance.
	Guidance int
	// UserID is forwarded to backends that support attribution
	UserID string
}

// Output is a successful generation: raw image bytes plus the effective
// settings the backend used.
type Output struct {
	// Data is the raw encoded image (PNG, JPEG, or WebP)
	Data []byte
	// Model is the concrete model the backend used
	Model string
	// Guidance is the guidance value the backend actually applied,
	// which may differ from the requested value after clamping
	Guidance int
}

// Provider is a single image generation backend.
//
// Implementations must be safe for concurrent use and must respect
// context cancellation on Generate.
type Provider interface {
	// Name returns the canonical provider name used in results and metadata
	Name() string
	// Generate produces one image for the given parameters
	Generate(ctx context.Context, params Params) (Output, error)
}

// Result is the per-provider outcome attached to a pipeline response.
// Exactly one of Output/Err is meaningful depending on Success.
type Result struct {
	// Provider is the name the caller requested (alias preserved)
	Provider string
	// Success indicates whether generation completed
	Success bool
	// Output holds the generated image on success
	Output Output
	// Err holds the failure cause; wrapped as core.ProviderError by the dispatcher
	Err error
}
