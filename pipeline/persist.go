// persist.go implements the two-phase image save: blob first, metadata
// second, with a compensating blob delete if the metadata write fails.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"imageforge/core"
	"imageforge/db"
	"imageforge/logging"
	"imageforge/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetadataStore is the subset of the image repository the coordinator needs.
type MetadataStore interface {
	InsertImage(ctx context.Context, record db.ImageRecord) (db.ImageRecord, error)
}

// Coordinator persists a generated image durably.
//
// Ordering is fixed: the blob is written before the metadata row, so a row
// never references a missing blob. If the metadata write fails the blob is
// deleted to compensate. A failed compensation leaves an orphaned blob, which
// the janitor's orphan sweep removes later.
type Coordinator struct {
	blobs  storage.BlobStore
	meta   MetadataStore
	logger *logging.Logger
}

// NewCoordinator creates a Coordinator over the given stores.
func NewCoordinator(blobs storage.BlobStore, meta MetadataStore, logger *logging.Logger) (*Coordinator, error) {
	if blobs == nil {
		return nil, fmt.Errorf("pipeline: blob store cannot be nil")
	}
	if meta == nil {
		return nil, fmt.Errorf("pipeline: metadata store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("pipeline: logger cannot be nil")
	}
	return &Coordinator{
		blobs:  blobs,
		meta:   meta,
		logger: logger.Named("persist"),
	}, nil
}

// Persist writes the image blob and its metadata row.
//
// On success the returned record has its ID populated. On failure a
// core.PersistenceError reports which stage failed and whether the
// compensating blob delete succeeded.
func (c *Coordinator) Persist(ctx context.Context, req *GenerationRequest, provider, model string, guidance int, data []byte) (db.ImageRecord, error) {
	log := c.logger.With(zap.String("request_id", req.RequestID))

	filename := blobFilename()
	imageURL, err := c.blobs.SaveImage(ctx, data, filename)
	if err != nil {
		log.Error("blob write failed", zap.Error(err))
		return db.ImageRecord{}, &core.PersistenceError{
			Stage: core.PersistStageBlob,
			Err:   err,
		}
	}

	log.Debug("blob written",
		zap.String("image_url", imageURL),
		zap.Int("bytes", len(data)))

	record, err := c.meta.InsertImage(ctx, db.ImageRecord{
		UserID:   req.UserID,
		Prompt:   req.Prompt,
		Original: req.Original,
		PromptID: req.PromptID,
		ImageURL: imageURL,
		Provider: provider,
		Model:    model,
		Guidance: guidance,
	})
	if err != nil {
		compensated := true
		if delErr := c.blobs.DeleteImage(ctx, imageURL); delErr != nil {
			compensated = false
			log.Error("compensating blob delete failed, blob orphaned until swept",
				zap.String("image_url", imageURL),
				zap.Error(delErr))
		} else {
			log.Info("metadata write failed, blob rolled back",
				zap.String("image_url", imageURL))
		}
		return db.ImageRecord{}, &core.PersistenceError{
			Stage:       core.PersistStageMetadata,
			Compensated: compensated,
			Err:         err,
		}
	}

	// A successful insert must yield an id; anything else means the
	// repository contract is broken and the row is unreachable.
	if record.ID == "" {
		log.Error("metadata insert returned no id",
			zap.String("image_url", imageURL))
		return db.ImageRecord{}, &core.PersistenceError{
			Stage: core.PersistStageMetadata,
			Err:   fmt.Errorf("pipeline: metadata insert returned no id"),
		}
	}

	log.Info("image persisted",
		zap.String("image_id", record.ID),
		zap.String("image_url", imageURL),
		zap.String("provider", provider))
	return record, nil
}

// blobFilename builds a unique blob name from a timestamp and a short
// uuid fragment.
func blobFilename() string {
	return fmt.Sprintf("img_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8])
}
