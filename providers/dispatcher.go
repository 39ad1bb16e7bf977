// dispatcher.go implements provider selection and invocation for a single
// generation request.
package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"imageforge/core"
	"imageforge/logging"

	"go.uber.org/zap"
)

// Dispatcher selects one backend from a request's provider list and invokes
// it with a bounded timeout.
//
// Selection is uniformly random across the requested names. Only the selected
// provider runs; the others are untouched for that request. The requested
// name (alias included) is preserved on the Result.
//
// Thread Safety: Dispatcher is safe for concurrent use. The random source is
// guarded by a mutex since math/rand.Rand is not goroutine-safe.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *logging.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

// DispatcherConfig holds configuration for the Dispatcher.
type DispatcherConfig struct {
	// Timeout bounds each provider invocation (default: 60s)
	Timeout time.Duration

	// Rand is the selection source; a time-seeded source is used if nil.
	// Tests inject a fixed-seed source for deterministic selection.
	Rand *rand.Rand
}

// DefaultDispatcherConfig returns sensible dispatcher defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout: 60 * time.Second,
	}
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *logging.Logger, config DispatcherConfig) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("providers: registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("providers: logger cannot be nil")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	source := config.Rand
	if source == nil {
		source = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Dispatcher{
		registry: registry,
		timeout:  config.Timeout,
		logger:   logger.Named("dispatcher"),
		rand:     source,
	}, nil
}

// Dispatch picks one provider name at random from requested, resolves it
// through the registry, and runs generation under the configured timeout.
//
// The returned Result always carries the requested name. Failures are wrapped
// in core.ProviderError with the canonical backend name as the source.
func (d *Dispatcher) Dispatch(ctx context.Context, requested []string, params Params) Result {
	if len(requested) == 0 {
		err := &core.ProviderError{Provider: "", Err: fmt.Errorf("providers: no providers requested")}
		return Result{Success: false, Err: err}
	}

	name := requested[d.pick(len(requested))]

	provider, err := d.registry.Resolve(name)
	if err != nil {
		return Result{
			Provider: name,
			Success:  false,
			Err:      &core.ProviderError{Provider: name, Err: err},
		}
	}

	log := d.logger.With(
		zap.String("requested", name),
		zap.String("backend", provider.Name()),
	)
	log.Debug("dispatching generation",
		zap.Int("candidates", len(requested)),
		zap.Int("guidance", params.Guidance))

	genCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	output, err := provider.Generate(genCtx, params)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("generation failed",
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return Result{
			Provider: name,
			Success:  false,
			Err:      &core.ProviderError{Provider: provider.Name(), Err: err},
		}
	}

	log.Info("generation succeeded",
		zap.Duration("elapsed", elapsed),
		zap.String("model", output.Model),
		zap.Int("bytes", len(output.Data)))

	return Result{
		Provider: name,
		Success:  true,
		Output:   output,
	}
}

// pick returns a random index in [0, n).
func (d *Dispatcher) pick(n int) int {
	if n == 1 {
		return 0
	}
	d.randMu.Lock()
	defer d.randMu.Unlock()
	return d.rand.Intn(n)
}

// Registry returns the underlying provider registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}
