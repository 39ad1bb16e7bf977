package core

import (
	"time"
)

// DefaultAdmissionWindow is the default rate limit window (60 seconds).
const DefaultAdmissionWindow = 60 * time.Second

// DefaultAdmissionLimit is the default number of requests allowed per window.
const DefaultAdmissionLimit = 10

// WindowRecord tracks request counts for admission control.
// Each record is associated with an identity (user ID or IP address).
type WindowRecord struct {
	// Count is the number of admitted requests within the current window
	Count int

	// ResetAt is when the window elapses and the count resets
	ResetAt time.Time
}

// NewWindowRecord creates a WindowRecord with count=1 and the given window duration.
func NewWindowRecord(window time.Duration) WindowRecord {
	return WindowRecord{
		Count:   1,
		ResetAt: time.Now().Add(window),
	}
}

// Expired returns true if the current time is past the ResetAt time.
func (w WindowRecord) Expired() bool {
	return time.Now().After(w.ResetAt)
}

// Exceeds returns true if the request count has gone past the given limit.
func (w WindowRecord) Exceeds(limit int) bool {
	return w.Count > limit
}

// TimeUntilReset returns the duration until the window resets.
// Returns zero if already past reset time.
func (w WindowRecord) TimeUntilReset() time.Duration {
	remaining := time.Until(w.ResetAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Increment returns a new WindowRecord with count incremented by 1.
// If the window has elapsed, a fresh record with count=1 is returned instead.
func (w WindowRecord) Increment(window time.Duration) WindowRecord {
	if w.Expired() {
		return NewWindowRecord(window)
	}
	return WindowRecord{
		Count:   w.Count + 1,
		ResetAt: w.ResetAt,
	}
}
