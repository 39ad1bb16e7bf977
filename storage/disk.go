package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"imageforge/logging"

	"go.uber.org/zap"

	// Image format decoders for validation and extension detection
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DiskStore stores image blobs on the local filesystem and serves them
// under a configured URL prefix.
//
// Thread Safety: DiskStore is safe for concurrent use. Writes go to
// distinct filenames, and deletes are idempotent at the filesystem level.
type DiskStore struct {
	dir     string
	baseURL string
	logger  *logging.Logger
}

// NewDiskStore creates a DiskStore rooted at dir. Stored blobs are addressed
// as baseURL + "/" + filename. The directory is created if missing.
func NewDiskStore(dir, baseURL string, logger *logging.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: directory is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: failed to create images directory: %w", err)
	}

	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.Named("storage"),
	}, nil
}

// SaveImage validates the image bytes, writes them to disk under the given
// base filename plus a format-derived extension, and returns the blob URL.
//
// The bytes must decode as PNG, JPEG, GIF, or WebP; anything else is
// rejected before touching the disk.
func (s *DiskStore) SaveImage(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("storage: image data is empty")
	}
	if filename == "" {
		return "", fmt.Errorf("storage: filename is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("storage: invalid image data: %w", err)
	}

	name := sanitizeFilename(filename) + extensionForFormat(format)
	fullPath := filepath.Join(s.dir, name)

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("storage: failed to write image file: %w", err)
	}

	s.logger.Debug("image blob stored",
		zap.String("file", name),
		zap.String("format", format),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("bytes", len(data)))

	return s.baseURL + "/" + name, nil
}

// DeleteImage removes the blob identified by a URL previously returned from
// SaveImage. Deleting a blob that no longer exists is not an error.
func (s *DiskStore) DeleteImage(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForURL(url)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete image file: %w", err)
	}

	s.logger.Debug("image blob deleted", zap.String("url", url))
	return nil
}

// List returns info for every blob in the store.
func (s *DiskStore) List(ctx context.Context) ([]BlobInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list images directory: %w", err)
	}

	var blobs []BlobInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, BlobInfo{
			URL:     s.baseURL + "/" + entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return blobs, nil
}

// Dir returns the directory blobs are stored in.
func (s *DiskStore) Dir() string {
	return s.dir
}

// pathForURL maps a blob URL back to its filesystem path, rejecting URLs
// outside the store's prefix and names that would escape the directory.
func (s *DiskStore) pathForURL(url string) (string, error) {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return "", fmt.Errorf("storage: URL %q is not under this store", url)
	}
	name := strings.TrimPrefix(url, s.baseURL+"/")
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("storage: invalid blob name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// extensionForFormat returns the file extension for a decoded image format.
func extensionForFormat(format string) string {
	switch format {
	case "png":
		return ".png"
	case "jpeg":
		return ".jpg"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ".png"
	}
}

// sanitizeFilename removes or replaces characters that are unsafe for filenames.
func sanitizeFilename(filename string) string {
	unsafe := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\n", "\r", "\t", " "}
	result := filename
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}

	if len(result) > 200 {
		result = result[:200]
	}
	if result == "" {
		result = "image"
	}

	return result
}

// Ensure DiskStore implements the storage interfaces at compile time.
var (
	_ BlobStore = (*DiskStore)(nil)
	_ Lister    = (*DiskStore)(nil)
)
