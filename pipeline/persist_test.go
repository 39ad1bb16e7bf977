package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"imageforge/core"
	"imageforge/db"
	"imageforge/logging"
)

type fakeBlobStore struct {
	saveErr    error
	deleteErr  error
	saved      []string
	deleted    []string
	savedBytes int
}

func (f *fakeBlobStore) SaveImage(ctx context.Context, data []byte, filename string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	url := "/images/" + filename + ".png"
	f.saved = append(f.saved, url)
	f.savedBytes += len(data)
	return url, nil
}

func (f *fakeBlobStore) DeleteImage(ctx context.Context, imageURL string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, imageURL)
	return nil
}

type fakeMetadataStore struct {
	insertErr error
	dropID    bool
	inserted  []db.ImageRecord
}

func (f *fakeMetadataStore) InsertImage(ctx context.Context, record db.ImageRecord) (db.ImageRecord, error) {
	if f.insertErr != nil {
		return db.ImageRecord{}, f.insertErr
	}
	if !f.dropID {
		record.ID = "img-123"
	}
	f.inserted = append(f.inserted, record)
	return record, nil
}

func newTestCoordinator(t *testing.T, blobs *fakeBlobStore, meta *fakeMetadataStore) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(blobs, meta, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	return c
}

func TestCoordinator_PersistSuccess(t *testing.T) {
	blobs := &fakeBlobStore{}
	meta := &fakeMetadataStore{}
	c := newTestCoordinator(t, blobs, meta)

	req := &GenerationRequest{RequestID: "r1", Prompt: "a red fox in snow", UserID: "u1"}
	record, err := c.Persist(context.Background(), req, "flux", "flux_1_schnell", 10, []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Persist() error = %v, want nil", err)
	}
	if record.ID != "img-123" {
		t.Errorf("record.ID = %s, want img-123", record.ID)
	}
	if len(blobs.saved) != 1 {
		t.Fatalf("saved blobs = %d, want 1", len(blobs.saved))
	}
	if len(meta.inserted) != 1 {
		t.Fatalf("inserted rows = %d, want 1", len(meta.inserted))
	}
	if meta.inserted[0].ImageURL != blobs.saved[0] {
		t.Errorf("metadata ImageURL = %s, want %s", meta.inserted[0].ImageURL, blobs.saved[0])
	}
	if meta.inserted[0].Provider != "flux" || meta.inserted[0].Guidance != 10 {
		t.Errorf("metadata provider/guidance = %s/%d, want flux/10", meta.inserted[0].Provider, meta.inserted[0].Guidance)
	}
}

func TestCoordinator_BlobFailureSkipsMetadata(t *testing.T) {
	blobs := &fakeBlobStore{saveErr: errors.New("disk full")}
	meta := &fakeMetadataStore{}
	c := newTestCoordinator(t, blobs, meta)

	req := &GenerationRequest{RequestID: "r1", Prompt: "p"}
	_, err := c.Persist(context.Background(), req, "openai", "dall-e-3", 7, []byte("data"))

	perr, ok := core.IsPersistenceError(err)
	if !ok {
		t.Fatalf("Persist() error = %v, want PersistenceError", err)
	}
	if perr.Stage != core.PersistStageBlob {
		t.Errorf("Stage = %s, want %s", perr.Stage, core.PersistStageBlob)
	}
	if len(meta.inserted) != 0 {
		t.Errorf("metadata written despite blob failure: %v", meta.inserted)
	}
}

func TestCoordinator_MetadataFailureCompensates(t *testing.T) {
	blobs := &fakeBlobStore{}
	meta := &fakeMetadataStore{insertErr: errors.New("constraint violation")}
	c := newTestCoordinator(t, blobs, meta)

	req := &GenerationRequest{RequestID: "r1", Prompt: "p"}
	_, err := c.Persist(context.Background(), req, "openai", "dall-e-3", 7, []byte("data"))

	perr, ok := core.IsPersistenceError(err)
	if !ok {
		t.Fatalf("Persist() error = %v, want PersistenceError", err)
	}
	if perr.Stage != core.PersistStageMetadata {
		t.Errorf("Stage = %s, want %s", perr.Stage, core.PersistStageMetadata)
	}
	if !perr.Compensated {
		t.Error("Compensated = false, want true")
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != blobs.saved[0] {
		t.Errorf("deleted = %v, want [%s]", blobs.deleted, blobs.saved[0])
	}
}

func TestCoordinator_CompensationFailureReported(t *testing.T) {
	blobs := &fakeBlobStore{deleteErr: errors.New("permission denied")}
	meta := &fakeMetadataStore{insertErr: errors.New("db down")}
	c := newTestCoordinator(t, blobs, meta)

	req := &GenerationRequest{RequestID: "r1", Prompt: "p"}
	_, err := c.Persist(context.Background(), req, "openai", "dall-e-3", 7, []byte("data"))

	perr, ok := core.IsPersistenceError(err)
	if !ok {
		t.Fatalf("Persist() error = %v, want PersistenceError", err)
	}
	if perr.Compensated {
		t.Error("Compensated = true, want false when delete fails")
	}
}

func TestCoordinator_MissingIDIsError(t *testing.T) {
	blobs := &fakeBlobStore{}
	meta := &fakeMetadataStore{dropID: true}
	c := newTestCoordinator(t, blobs, meta)

	req := &GenerationRequest{RequestID: "r1", Prompt: "p"}
	_, err := c.Persist(context.Background(), req, "openai", "dall-e-3", 7, []byte("data"))

	perr, ok := core.IsPersistenceError(err)
	if !ok {
		t.Fatalf("Persist() error = %v, want PersistenceError", err)
	}
	if perr.Stage != core.PersistStageMetadata {
		t.Errorf("Stage = %s, want %s", perr.Stage, core.PersistStageMetadata)
	}
	if !strings.Contains(perr.Err.Error(), "no id") {
		t.Errorf("Err = %v, want mention of missing id", perr.Err)
	}
}

func TestBlobFilename_Unique(t *testing.T) {
	a := blobFilename()
	b := blobFilename()
	if a == b {
		t.Errorf("blobFilename() produced duplicates: %s", a)
	}
	if !strings.HasPrefix(a, "img_") {
		t.Errorf("blobFilename() = %s, want img_ prefix", a)
	}
}
