// Package storage provides durable blob storage for generated images.
package storage

import (
	"context"
	"time"
)

// BlobStore is the interface for image blob storage.
// Implementations must return a durable URL from SaveImage that DeleteImage
// accepts to remove the same blob.
type BlobStore interface {
	// SaveImage writes the image bytes under the given base filename
	// (extension is derived from the image format) and returns the
	// durable URL of the stored blob.
	SaveImage(ctx context.Context, data []byte, filename string) (string, error)

	// DeleteImage removes the blob identified by the URL previously
	// returned from SaveImage.
	DeleteImage(ctx context.Context, url string) error
}

// BlobInfo describes a stored blob, used by the orphan sweeper.
type BlobInfo struct {
	// URL is the durable URL of the blob
	URL string

	// Size in bytes
	Size int64

	// ModTime is the blob's last modification time
	ModTime time.Time
}

// Lister is implemented by stores that can enumerate their blobs.
type Lister interface {
	// List returns info for every stored blob.
	List(ctx context.Context) ([]BlobInfo, error)
}
