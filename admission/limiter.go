// limiter.go implements the admission decision: per-identity fixed-window
// rate limiting with an administrative bypass.
package admission

import (
	"context"
	"fmt"
	"time"

	"imageforge/core"
	"imageforge/logging"
	"imageforge/metrics"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Identity is who a request counts against. UserID takes precedence over IP,
// so a signed-in user is limited consistently across addresses while
// anonymous traffic is limited per address.
type Identity struct {
	UserID   string
	IP       string
	AdminKey string
}

// Key returns the counter key for this identity.
func (id Identity) Key() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	return "ip:" + id.IP
}

// Kind labels the identity for metrics.
func (id Identity) Kind() string {
	if id.UserID != "" {
		return "user"
	}
	return "ip"
}

// Decision is the outcome of an admission check, carrying everything the
// HTTP layer needs for rate limit headers.
type Decision struct {
	// Allowed reports whether the request may proceed
	Allowed bool
	// Bypassed reports whether an admin key skipped counting entirely
	Bypassed bool
	// Limit is the configured max requests per window
	Limit int
	// Remaining is how many requests are left in the current window
	Remaining int
	// RetryAfter is the time until the window resets
	RetryAfter time.Duration
	// Window is the configured window length
	Window time.Duration
}

// Limiter decides whether a request is admitted, rejected, or bypassed.
//
// Thread Safety: Limiter is safe for concurrent use; all mutable state lives
// in the CounterStore.
type Limiter struct {
	store        CounterStore
	limit        int
	window       time.Duration
	adminKeyHash string
	logger       *logging.Logger
	metrics      metrics.Metrics
}

// LimiterConfig holds configuration for the Limiter.
type LimiterConfig struct {
	// Limit is the max requests per identity per window (default: 10)
	Limit int

	// Window is the fixed window length (default: 60s)
	Window time.Duration

	// AdminKeyHash is the bcrypt hash of the admin bypass key.
	// Empty disables the bypass.
	AdminKeyHash string
}

// DefaultLimiterConfig returns the standard admission limits.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Limit:  10,
		Window: 60 * time.Second,
	}
}

// NewLimiter creates a Limiter over the given counter store.
func NewLimiter(store CounterStore, logger *logging.Logger, m metrics.Metrics, config LimiterConfig) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("admission: counter store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("admission: logger cannot be nil")
	}
	if m == nil {
		m = metrics.Noop{}
	}

	if config.Limit <= 0 {
		config.Limit = DefaultLimiterConfig().Limit
	}
	if config.Window <= 0 {
		config.Window = DefaultLimiterConfig().Window
	}

	return &Limiter{
		store:        store,
		limit:        config.Limit,
		window:       config.Window,
		adminKeyHash: config.AdminKeyHash,
		logger:       logger.Named("admission"),
		metrics:      m,
	}, nil
}

// Admit checks the identity against its rate limit and counts the request.
//
// A valid admin key bypasses counting entirely. Otherwise the identity's
// window counter is incremented; once the count exceeds the limit the request
// is rejected and the Decision carries the retry timing for response headers.
func (l *Limiter) Admit(ctx context.Context, id Identity) (Decision, error) {
	if l.isAdmin(id.AdminKey) {
		l.logger.Debug("admission bypassed by admin key", zap.String("identity", id.Key()))
		return Decision{
			Allowed:   true,
			Bypassed:  true,
			Limit:     l.limit,
			Remaining: l.limit,
			Window:    l.window,
		}, nil
	}

	count, ttl, err := l.store.Incr(ctx, id.Key(), l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("admission: counter store failed: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:    count <= l.limit,
		Limit:      l.limit,
		Remaining:  remaining,
		RetryAfter: ttl,
		Window:     l.window,
	}

	if !decision.Allowed {
		l.metrics.IncRejected(id.Kind())
		l.logger.Info("request rejected by rate limit",
			zap.String("identity", id.Key()),
			zap.Int("count", count),
			zap.Int("limit", l.limit),
			zap.Duration("retry_after", ttl))
		return decision, &core.AdmissionError{
			Identity:   id.Key(),
			Limit:      l.limit,
			Window:     l.window,
			RetryAfter: ttl,
		}
	}

	l.metrics.IncAdmitted(id.Kind())
	return decision, nil
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// isAdmin checks a presented key against the configured bcrypt hash.
func (l *Limiter) isAdmin(key string) bool {
	if l.adminKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(l.adminKeyHash), []byte(key)) == nil
}
