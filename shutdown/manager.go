// Package shutdown coordinates graceful service termination: signal
// handling, context cancellation, and ordered resource cleanup.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager coordinates graceful shutdown.
//
// The first SIGINT/SIGTERM cancels the managed context so components can
// stop accepting work; a second signal forces immediate exit. Shutdown then
// runs registered cleanup functions in priority order (lower first).
//
// Usage:
//
//	manager := NewManager(logger, WithTimeout(cfg.ShutdownTimeout))
//	manager.Register("http-server", 10, server.Shutdown)
//	manager.Register("database", 30, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	manager.Start()
//	manager.Wait()
//	manager.Shutdown()
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	registry *Registry
	sigChan  chan os.Signal
	sigCount int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout. Default is 30 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewManager creates a Manager ready to coordinate graceful shutdown.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger,
		timeout:  30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context returns the managed context, cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priority values run first.
//
// Typical priority ranges:
//   - 0-9: stop accepting new work (HTTP server)
//   - 10-19: drain in-flight work (queue, tagging)
//   - 20-29: stop background services (janitor, async writers)
//   - 30-39: close resources (database, redis)
//   - 40+: flush logs
func (m *Manager) Register(name string, priority int, fn CleanupFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start begins listening for SIGINT and SIGTERM.
// Safe to call multiple times; subsequent calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			m.mu.Lock()
			m.sigCount++
			count := m.sigCount
			m.mu.Unlock()

			if count == 1 {
				m.logger.Info("received shutdown signal, initiating graceful shutdown",
					zap.String("signal", sig.String()))
				m.cancel()
				continue
			}
			m.logger.Warn("received second signal, forcing immediate shutdown")
			os.Exit(1)
		}
	}()
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// Trigger initiates shutdown programmatically, as if a signal arrived.
func (m *Manager) Trigger() {
	m.cancel()
}

// Shutdown runs the cleanup sequence under the configured timeout.
// Idempotent; subsequent calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	start := time.Now()
	m.logger.Info("executing shutdown sequence",
		zap.Duration("timeout", m.timeout),
		zap.Strings("handlers", m.registry.Names()))

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup failed", zap.Error(err))
	}

	signal.Stop(m.sigChan)

	duration := time.Since(start)
	if len(errs) > 0 {
		m.logger.Error("shutdown completed with errors",
			zap.Duration("duration", duration),
			zap.Int("error_count", len(errs)))
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}

	m.logger.Info("graceful shutdown completed", zap.Duration("duration", duration))
	return nil
}

// IsShuttingDown reports whether shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	select {
	case <-m.ctx.Done():
		return true
	default:
		return false
	}
}
