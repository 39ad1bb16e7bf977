package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sqliteTimeFormat is the layout SQLite stores DATETIME values in.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// ErrImageNotFound is returned when no image row matches the given id.
var ErrImageNotFound = errors.New("image not found")

// ImageRecord represents a row in the images table: one durably stored
// generated image plus its generation context and enrichment state.
type ImageRecord struct {
	ID              string     // UUID primary key
	UserID          string     // Owning user id ("" for anonymous)
	Prompt          string     // Prompt sent to the provider
	Original        string     // Original user text before any prompt rewriting
	PromptID        string     // Optional reference to a saved prompt
	ImageURL        string     // Durable URL of the stored blob
	Provider        string     // Provider that generated the image
	Model           string     // Model reported by the provider
	Guidance        int        // Guidance value reported by the provider
	Rating          int        // User rating (0 = unrated)
	Tags            []string   // Tags populated asynchronously by the tagging service
	TaggingMetadata string     // JSON metadata from the tagging call
	TaggedAt        *time.Time // When tagging completed (nil while pending)
	CreatedAt       time.Time  // Row creation time
}

// ImageRepository provides CRUD operations for the images table.
type ImageRepository struct {
	db *Database
}

// NewImageRepository creates an ImageRepository over the given database.
func NewImageRepository(db *Database) *ImageRepository {
	return &ImageRepository{db: db}
}

// InsertImage inserts a new image row. If record.ID is empty a UUID is
// generated. Returns the stored record with ID and CreatedAt populated.
func (r *ImageRepository) InsertImage(ctx context.Context, record ImageRecord) (ImageRecord, error) {
	if r.db == nil || r.db.DB() == nil {
		return ImageRecord{}, fmt.Errorf("database connection is nil")
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}

	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
		INSERT INTO images (
			id, user_id, prompt, original, prompt_id, image_url,
			provider, model, guidance, rating, tags, tagging_metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.DB().ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.Prompt,
		record.Original,
		record.PromptID,
		record.ImageURL,
		record.Provider,
		record.Model,
		record.Guidance,
		record.Rating,
		string(tagsJSON),
		record.TaggingMetadata,
		record.CreatedAt.Format(sqliteTimeFormat),
	)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("failed to insert image: %w", err)
	}

	return record, nil
}

// GetImage retrieves an image row by id.
// Returns ErrImageNotFound if no row matches.
func (r *ImageRepository) GetImage(ctx context.Context, id string) (ImageRecord, error) {
	if r.db == nil || r.db.DB() == nil {
		return ImageRecord{}, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT id, user_id, prompt, original, prompt_id, image_url,
			   provider, model, guidance, rating, tags,
			   COALESCE(tagging_metadata, ''), tagged_at, created_at
		FROM images
		WHERE id = ?`

	return r.scanImage(r.db.DB().QueryRowContext(ctx, query, id))
}

// UpdateTags sets the tags, tagging metadata, and tagged_at timestamp for an
// image row. Used by the tagging service after asynchronous enrichment.
func (r *ImageRepository) UpdateTags(ctx context.Context, id string, tags []string, metadata string, taggedAt time.Time) error {
	if r.db == nil || r.db.DB() == nil {
		return fmt.Errorf("database connection is nil")
	}

	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `UPDATE images SET tags = ?, tagging_metadata = ?, tagged_at = ? WHERE id = ?`
	result, err := r.db.DB().ExecContext(ctx, query,
		string(tagsJSON), metadata, taggedAt.UTC().Format(sqliteTimeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrImageNotFound
	}
	return nil
}

// DeleteImage removes an image row by id.
// Returns ErrImageNotFound if no row matches.
func (r *ImageRepository) DeleteImage(ctx context.Context, id string) error {
	if r.db == nil || r.db.DB() == nil {
		return fmt.Errorf("database connection is nil")
	}

	result, err := r.db.DB().ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrImageNotFound
	}
	return nil
}

// HasImageURL reports whether any row references the given blob URL.
// Used by the orphan sweeper to distinguish orphaned blobs from live ones.
func (r *ImageRepository) HasImageURL(ctx context.Context, imageURL string) (bool, error) {
	if r.db == nil || r.db.DB() == nil {
		return false, fmt.Errorf("database connection is nil")
	}

	var count int
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM images WHERE image_url = ?`, imageURL).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query image url: %w", err)
	}
	return count > 0, nil
}

// ListRecentImages retrieves the most recent image rows, newest first.
func (r *ImageRepository) ListRecentImages(ctx context.Context, limit int) ([]ImageRecord, error) {
	if r.db == nil || r.db.DB() == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, user_id, prompt, original, prompt_id, image_url,
			   provider, model, guidance, rating, tags,
			   COALESCE(tagging_metadata, ''), tagged_at, created_at
		FROM images
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var records []ImageRecord
	for rows.Next() {
		rec, err := r.scanImage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating image rows: %w", err)
	}
	return records, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ImageRepository) scanImage(row rowScanner) (ImageRecord, error) {
	var rec ImageRecord
	var tagsJSON string
	var taggedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Prompt,
		&rec.Original,
		&rec.PromptID,
		&rec.ImageURL,
		&rec.Provider,
		&rec.Model,
		&rec.Guidance,
		&rec.Rating,
		&tagsJSON,
		&rec.TaggingMetadata,
		&taggedAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ImageRecord{}, ErrImageNotFound
	}
	if err != nil {
		return ImageRecord{}, fmt.Errorf("failed to scan image row: %w", err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		// A corrupt tags column should not make the row unreadable
		rec.Tags = []string{}
	}
	if taggedAt.Valid && taggedAt.String != "" {
		if t, err := time.Parse(sqliteTimeFormat, taggedAt.String); err == nil {
			rec.TaggedAt = &t
		}
	}
	rec.CreatedAt, _ = time.Parse(sqliteTimeFormat, createdAt)

	return rec, nil
}
