package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) *ImageRepository {
	t.Helper()
	database, err := NewDatabase(DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "test.db"),
		MigrationsPath: "file://migrations",
	})
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return NewImageRepository(database)
}

func TestImageRepository_InsertAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record, err := repo.InsertImage(ctx, ImageRecord{
		UserID:   "user-1",
		Prompt:   "a red fox in snow",
		ImageURL: "/images/img_1.png",
		Provider: "flux",
		Model:    "flux_1_schnell",
		Guidance: 10,
	})
	if err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}
	if record.ID == "" {
		t.Fatal("InsertImage() did not assign an id")
	}

	got, err := repo.GetImage(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if got.Prompt != "a red fox in snow" || got.Provider != "flux" || got.Guidance != 10 {
		t.Errorf("GetImage() = %+v, want inserted values", got)
	}
	if got.TaggedAt != nil {
		t.Errorf("TaggedAt = %v, want nil before tagging", got.TaggedAt)
	}
	if len(got.Tags) != 0 {
		t.Errorf("Tags = %v, want empty before tagging", got.Tags)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestImageRepository_PreservesExplicitID(t *testing.T) {
	repo := newTestRepository(t)

	record, err := repo.InsertImage(context.Background(), ImageRecord{
		ID:       "explicit-id",
		Prompt:   "p",
		ImageURL: "/images/a.png",
		Provider: "openai",
	})
	if err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}
	if record.ID != "explicit-id" {
		t.Errorf("ID = %s, want explicit-id", record.ID)
	}
}

func TestImageRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetImage(context.Background(), "nope")
	if !errors.Is(err, ErrImageNotFound) {
		t.Errorf("GetImage() error = %v, want ErrImageNotFound", err)
	}
}

func TestImageRepository_UpdateTags(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record, err := repo.InsertImage(ctx, ImageRecord{
		Prompt:   "p",
		ImageURL: "/images/b.png",
		Provider: "openai",
	})
	if err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}

	taggedAt := time.Now().UTC().Truncate(time.Second)
	tags := []string{"fox", "snow", "winter"}
	if err := repo.UpdateTags(ctx, record.ID, tags, `{"model":"gpt-4o-mini"}`, taggedAt); err != nil {
		t.Fatalf("UpdateTags() error = %v", err)
	}

	got, err := repo.GetImage(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if len(got.Tags) != 3 || got.Tags[0] != "fox" {
		t.Errorf("Tags = %v, want %v", got.Tags, tags)
	}
	if got.TaggedAt == nil || !got.TaggedAt.Equal(taggedAt) {
		t.Errorf("TaggedAt = %v, want %v", got.TaggedAt, taggedAt)
	}
	if got.TaggingMetadata == "" {
		t.Error("TaggingMetadata empty after UpdateTags()")
	}

	if err := repo.UpdateTags(ctx, "missing", tags, "", taggedAt); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("UpdateTags(missing) error = %v, want ErrImageNotFound", err)
	}
}

func TestImageRepository_DeleteImage(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record, err := repo.InsertImage(ctx, ImageRecord{
		Prompt:   "p",
		ImageURL: "/images/c.png",
		Provider: "openai",
	})
	if err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}

	if err := repo.DeleteImage(ctx, record.ID); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	if _, err := repo.GetImage(ctx, record.ID); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("GetImage() after delete error = %v, want ErrImageNotFound", err)
	}
	if err := repo.DeleteImage(ctx, record.ID); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("second DeleteImage() error = %v, want ErrImageNotFound", err)
	}
}

func TestImageRepository_HasImageURL(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.InsertImage(ctx, ImageRecord{
		Prompt:   "p",
		ImageURL: "/images/present.png",
		Provider: "openai",
	}); err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}

	has, err := repo.HasImageURL(ctx, "/images/present.png")
	if err != nil {
		t.Fatalf("HasImageURL() error = %v", err)
	}
	if !has {
		t.Error("HasImageURL(present) = false, want true")
	}

	has, err = repo.HasImageURL(ctx, "/images/orphan.png")
	if err != nil {
		t.Fatalf("HasImageURL() error = %v", err)
	}
	if has {
		t.Error("HasImageURL(orphan) = true, want false")
	}
}

func TestAsyncTagWriter_AppliesUpdates(t *testing.T) {
	applied := make(chan TagUpdate, 10)
	writer := NewAsyncTagWriter(10, func(ctx context.Context, update TagUpdate) error {
		applied <- update
		return nil
	}, nil)
	writer.Start()
	defer writer.Stop()

	update := TagUpdate{ImageID: "img-1", Tags: []string{"fox"}, TaggedAt: time.Now()}
	if err := writer.Write(update); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case got := <-applied:
		if got.ImageID != "img-1" {
			t.Errorf("applied ImageID = %s, want img-1", got.ImageID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update not applied")
	}
}

func TestAsyncTagWriter_DrainsOnStop(t *testing.T) {
	applied := make(chan TagUpdate, 10)
	writer := NewAsyncTagWriter(10, func(ctx context.Context, update TagUpdate) error {
		applied <- update
		return nil
	}, nil)
	writer.Start()

	for i := 0; i < 3; i++ {
		if err := writer.Write(TagUpdate{ImageID: "img"}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	writer.Stop()

	if got := len(applied); got != 3 {
		t.Errorf("applied %d updates after Stop(), want 3", got)
	}
}

func TestAsyncTagWriter_SynchronousWhenNotStarted(t *testing.T) {
	var applied int
	writer := NewAsyncTagWriter(10, func(ctx context.Context, update TagUpdate) error {
		applied++
		return nil
	}, nil)

	if err := writer.Write(TagUpdate{ImageID: "img"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want synchronous apply", applied)
	}
}
