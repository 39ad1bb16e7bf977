package pipeline

import (
	"strings"
	"testing"

	"imageforge/core"
)

func newTestValidator() *Validator {
	return NewValidator(ValidatorConfig{
		MaxPromptLength: 2000,
		MinGuidance:     1,
		MaxGuidance:     20,
		DefaultGuidance: 7,
	})
}

func TestValidator_ValidRequest(t *testing.T) {
	v := newTestValidator()
	req := &GenerationRequest{
		Prompt:    "a red fox in snow",
		Providers: []string{"flux"},
		Guidance:  10,
	}

	if err := v.Validate(req); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidator_MissingPrompt(t *testing.T) {
	v := newTestValidator()
	req := &GenerationRequest{Providers: []string{"openai"}}

	err := v.Validate(req)
	verr, ok := core.IsValidationError(err)
	if !ok {
		t.Fatalf("Validate() = %v, want ValidationError", err)
	}
	if len(verr.Violations) != 1 || verr.Violations[0] != "Prompt is required" {
		t.Errorf("Violations = %v, want [Prompt is required]", verr.Violations)
	}
}

func TestValidator_GuidanceOutOfRange(t *testing.T) {
	v := newTestValidator()
	req := &GenerationRequest{
		Prompt:    "a lighthouse at dusk",
		Providers: []string{"openai"},
		Guidance:  25,
	}

	err := v.Validate(req)
	verr, ok := core.IsValidationError(err)
	if !ok {
		t.Fatalf("Validate() = %v, want ValidationError", err)
	}
	want := "Guidance must be between 1 and 20"
	if len(verr.Violations) != 1 || verr.Violations[0] != want {
		t.Errorf("Violations = %v, want [%s]", verr.Violations, want)
	}
}

func TestValidator_CollectsAllViolations(t *testing.T) {
	v := newTestValidator()
	req := &GenerationRequest{
		Prompt:   "   ",
		Guidance: 99,
	}

	err := v.Validate(req)
	verr, ok := core.IsValidationError(err)
	if !ok {
		t.Fatalf("Validate() = %v, want ValidationError", err)
	}

	want := []string{
		"Prompt is required",
		"At least one provider must be selected",
		"Guidance must be between 1 and 20",
	}
	if len(verr.Violations) != len(want) {
		t.Fatalf("got %d violations %v, want %d", len(verr.Violations), verr.Violations, len(want))
	}
	for i, violation := range want {
		if verr.Violations[i] != violation {
			t.Errorf("Violations[%d] = %q, want %q", i, verr.Violations[i], violation)
		}
	}
}

func TestValidator_PromptTooLong(t *testing.T) {
	v := newTestValidator()
	req := &GenerationRequest{
		Prompt:    strings.Repeat("x", 2001),
		Providers: []string{"openai"},
	}

	err := v.Validate(req)
	verr, ok := core.IsValidationError(err)
	if !ok {
		t.Fatalf("Validate() = %v, want ValidationError", err)
	}
	if len(verr.Violations) != 1 {
		t.Errorf("Violations = %v, want exactly one", verr.Violations)
	}
}

func TestValidator_UnknownProvider(t *testing.T) {
	v := NewValidator(ValidatorConfig{
		MaxPromptLength: 2000,
		MinGuidance:     1,
		MaxGuidance:     20,
		DefaultGuidance: 7,
		KnownProvider: func(name string) bool {
			return name == "openai"
		},
	})
	req := &GenerationRequest{
		Prompt:    "a red fox in snow",
		Providers: []string{"openai", "nonsense"},
	}

	err := v.Validate(req)
	verr, ok := core.IsValidationError(err)
	if !ok {
		t.Fatalf("Validate() = %v, want ValidationError", err)
	}
	if len(verr.Violations) != 1 || verr.Violations[0] != "Unknown provider: nonsense" {
		t.Errorf("Violations = %v, want [Unknown provider: nonsense]", verr.Violations)
	}
}

func TestValidator_ApplyDefaults(t *testing.T) {
	v := newTestValidator()
	req := &GenerationRequest{
		Prompt:    "a red fox in snow",
		Providers: []string{"openai"},
	}

	if err := v.Validate(req); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	v.ApplyDefaults(req)
	if req.Guidance != 7 {
		t.Errorf("Guidance after defaults = %d, want 7", req.Guidance)
	}
}
