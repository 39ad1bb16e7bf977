// validate.go implements request validation. All violations are collected
// before returning so the client sees the complete list in one response.
package pipeline

import (
	"fmt"
	"strings"

	"imageforge/core"
)

// Validator checks generation requests against configured bounds.
type Validator struct {
	maxPromptLength int
	minGuidance     int
	maxGuidance     int
	defaultGuidance int
	knownProvider   func(name string) bool
}

// ValidatorConfig holds validation bounds.
type ValidatorConfig struct {
	// MaxPromptLength bounds prompt size in bytes (default: 2000)
	MaxPromptLength int

	// MinGuidance / MaxGuidance bound the guidance parameter (default: 1..20)
	MinGuidance int
	MaxGuidance int

	// DefaultGuidance is applied when the request omits guidance (default: 7)
	DefaultGuidance int

	// KnownProvider reports whether a provider name resolves; nil skips the check
	KnownProvider func(name string) bool
}

// DefaultValidatorConfig returns the standard validation bounds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPromptLength: 2000,
		MinGuidance:     1,
		MaxGuidance:     20,
		DefaultGuidance: 7,
	}
}

// NewValidator creates a Validator with the given bounds.
// Zero-valued bounds fall back to defaults.
func NewValidator(config ValidatorConfig) *Validator {
	defaults := DefaultValidatorConfig()
	if config.MaxPromptLength <= 0 {
		config.MaxPromptLength = defaults.MaxPromptLength
	}
	if config.MinGuidance == 0 && config.MaxGuidance == 0 {
		config.MinGuidance = defaults.MinGuidance
		config.MaxGuidance = defaults.MaxGuidance
	}
	if config.DefaultGuidance == 0 {
		config.DefaultGuidance = defaults.DefaultGuidance
	}
	return &Validator{
		maxPromptLength: config.MaxPromptLength,
		minGuidance:     config.MinGuidance,
		maxGuidance:     config.MaxGuidance,
		defaultGuidance: config.DefaultGuidance,
		knownProvider:   config.KnownProvider,
	}
}

// Validate checks the request and returns a core.ValidationError carrying
// every violation found, or nil if the request is valid.
//
// A zero Guidance means "not provided" and is not a violation; ApplyDefaults
// fills it in after validation passes.
func (v *Validator) Validate(req *GenerationRequest) error {
	var violations []string

	if strings.TrimSpace(req.Prompt) == "" {
		violations = append(violations, "Prompt is required")
	} else if len(req.Prompt) > v.maxPromptLength {
		violations = append(violations, fmt.Sprintf("Prompt must be at most %d characters", v.maxPromptLength))
	}

	if len(req.Providers) == 0 {
		violations = append(violations, "At least one provider must be selected")
	} else if v.knownProvider != nil {
		for _, name := range req.Providers {
			if !v.knownProvider(name) {
				violations = append(violations, fmt.Sprintf("Unknown provider: %s", name))
			}
		}
	}

	if req.Guidance != 0 && (req.Guidance < v.minGuidance || req.Guidance > v.maxGuidance) {
		violations = append(violations, fmt.Sprintf("Guidance must be between %d and %d", v.minGuidance, v.maxGuidance))
	}

	if len(violations) > 0 {
		return core.NewValidationError(violations)
	}
	return nil
}

// ApplyDefaults fills in omitted optional fields on a valid request.
func (v *Validator) ApplyDefaults(req *GenerationRequest) {
	if req.Guidance == 0 {
		req.Guidance = v.defaultGuidance
	}
}
