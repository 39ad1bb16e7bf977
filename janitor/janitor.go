// Package janitor runs scheduled maintenance: reaping expired admission
// records and sweeping orphaned image blobs left behind when a compensating
// delete failed.
package janitor

import (
	"context"
	"fmt"
	"time"

	"imageforge/admission"
	"imageforge/db"
	"imageforge/logging"
	"imageforge/metrics"
	"imageforge/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor schedules maintenance jobs with cron.
type Janitor struct {
	cron    *cron.Cron
	blobs   storage.Lister
	deleter storage.BlobStore
	repo    *db.ImageRepository
	memory  *admission.MemoryStore
	logger  *logging.Logger
	metrics metrics.Metrics

	schedule    string
	gracePeriod time.Duration
}

// JanitorConfig holds configuration for the Janitor.
type JanitorConfig struct {
	// Schedule is a cron expression for maintenance runs (default: @every 5m)
	Schedule string

	// GracePeriod is the minimum blob age before the orphan sweep may
	// delete it, protecting blobs whose metadata write is still in flight
	// (default: 1h)
	GracePeriod time.Duration
}

// DefaultJanitorConfig returns sensible maintenance defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule:    "@every 5m",
		GracePeriod: time.Hour,
	}
}

// NewJanitor creates a Janitor. The memory store may be nil when admission
// counters live in Redis, which expires its own keys.
func NewJanitor(blobs storage.BlobStore, repo *db.ImageRepository, memory *admission.MemoryStore, logger *logging.Logger, m metrics.Metrics, config JanitorConfig) (*Janitor, error) {
	if blobs == nil {
		return nil, fmt.Errorf("janitor: blob store cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("janitor: image repository cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("janitor: logger cannot be nil")
	}
	if m == nil {
		m = metrics.Noop{}
	}

	lister, ok := blobs.(storage.Lister)
	if !ok {
		return nil, fmt.Errorf("janitor: blob store does not support listing")
	}

	defaults := DefaultJanitorConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = defaults.GracePeriod
	}

	return &Janitor{
		cron:        cron.New(),
		blobs:       lister,
		deleter:     blobs,
		repo:        repo,
		memory:      memory,
		logger:      logger.Named("janitor"),
		metrics:     m,
		schedule:    config.Schedule,
		gracePeriod: config.GracePeriod,
	}, nil
}

// Start registers the maintenance jobs and begins the cron scheduler.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return fmt.Errorf("janitor: invalid schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", zap.String("schedule", j.schedule))
	return nil
}

// Stop halts the scheduler and waits for any running job to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}

// run executes one maintenance pass.
func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	j.cleanupAdmission()
	j.sweepOrphans(ctx)
}

// cleanupAdmission reaps expired in-memory admission records.
func (j *Janitor) cleanupAdmission() {
	if j.memory == nil {
		return
	}
	removed := j.memory.Cleanup()
	if removed > 0 {
		j.logger.Debug("reaped expired admission records", zap.Int("removed", removed))
	}
}

// sweepOrphans deletes blobs past the grace period that no metadata row
// references. Such blobs exist only when a compensating delete failed.
func (j *Janitor) sweepOrphans(ctx context.Context) {
	blobs, err := j.blobs.List(ctx)
	if err != nil {
		j.logger.Warn("orphan sweep: failed to list blobs", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-j.gracePeriod)
	swept := 0
	for _, blob := range blobs {
		if blob.ModTime.After(cutoff) {
			continue
		}

		referenced, err := j.repo.HasImageURL(ctx, blob.URL)
		if err != nil {
			j.logger.Warn("orphan sweep: metadata lookup failed",
				zap.String("url", blob.URL),
				zap.Error(err))
			continue
		}
		if referenced {
			continue
		}

		if err := j.deleter.DeleteImage(ctx, blob.URL); err != nil {
			j.logger.Warn("orphan sweep: delete failed",
				zap.String("url", blob.URL),
				zap.Error(err))
			continue
		}
		swept++
		j.logger.Info("swept orphaned blob",
			zap.String("url", blob.URL),
			zap.Int64("size", blob.Size))
	}

	if swept > 0 {
		j.metrics.IncOrphansSwept(swept)
	}
}
