package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError carries the complete list of input violations for a
// generation request. All violations are collected before the error is
// returned so the caller can report them in one response.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// NewValidationError creates a ValidationError from a list of violations.
func NewValidationError(violations []string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// AdmissionError is returned when a request exceeds its identity's rate limit.
// RetryAfter is the remaining window time, suitable for a Retry-After header.
type AdmissionError struct {
	Identity   string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per %s, retry after %s",
		e.Identity, e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}

// ProviderError wraps a failure from an external image generation provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Persistence stages, used to distinguish which step of the two-phase save failed.
const (
	PersistStageBlob     = "blob"
	PersistStageMetadata = "metadata"
)

// PersistenceError wraps a failure from the two-phase image save.
// Stage is PersistStageBlob or PersistStageMetadata. Compensated reports
// whether the blob written in step 1 was successfully rolled back.
type PersistenceError struct {
	Stage       string
	Compensated bool
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed at %s stage: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a ValidationError and returns it if so.
func IsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// IsAdmissionError checks if an error is an AdmissionError and returns it if so.
func IsAdmissionError(err error) (*AdmissionError, bool) {
	var aerr *AdmissionError
	if errors.As(err, &aerr) {
		return aerr, true
	}
	return nil, false
}

// IsProviderError checks if an error is a ProviderError and returns it if so.
func IsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsPersistenceError checks if an error is a PersistenceError and returns it if so.
func IsPersistenceError(err error) (*PersistenceError, bool) {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
