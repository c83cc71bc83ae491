package store

import (
	"testing"

	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/testutil"
)

func TestArtifactRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)

	rec := &models.ArtifactRecord{
		SeriesID:  42,
		Chapter:   10.5,
		Format:    models.FormatDocument,
		Reference: "blob-handle-1",
		PageCount: 24,
		SizeBytes: 12 << 20,
	}
	if err := s.SaveArtifact(rec); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	got, err := s.GetArtifact(42, 10.5, models.FormatDocument)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if got == nil || got.Reference != "blob-handle-1" || got.PageCount != 24 {
		t.Errorf("Unexpected artifact record: %+v", got)
	}

	// The two output formats are independent cache keys.
	if got, _ := s.GetArtifact(42, 10.5, models.FormatPublished); got != nil {
		t.Errorf("Published artifact should be a separate key, got %+v", got)
	}

	// Last writer wins on the same composite key.
	rec.Reference = "blob-handle-2"
	if err := s.SaveArtifact(rec); err != nil {
		t.Fatalf("SaveArtifact (overwrite) failed: %v", err)
	}
	got, _ = s.GetArtifact(42, 10.5, models.FormatDocument)
	if got.Reference != "blob-handle-2" {
		t.Errorf("Expected overwritten reference, got %s", got.Reference)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected exactly one row per composite key, got %d", count)
	}
}

func TestDeleteArtifact(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)

	rec := &models.ArtifactRecord{SeriesID: 7, Chapter: 1, Format: models.FormatPublished, Reference: "https://pages.example/a"}
	if err := s.SaveArtifact(rec); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteArtifact(7, 1, models.FormatPublished); err != nil {
		t.Fatalf("DeleteArtifact failed: %v", err)
	}
	if got, _ := s.GetArtifact(7, 1, models.FormatPublished); got != nil {
		t.Errorf("Artifact should be gone, got %+v", got)
	}
}
