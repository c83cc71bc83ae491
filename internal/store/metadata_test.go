package store

import (
	"testing"
	"time"

	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/testutil"
)

func TestUpsertAndGetSeries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)

	m := &models.SeriesMetadata{
		ID:           1234,
		Title:        "Наруто",
		TitleEnglish: "Naruto",
		Description:  "A ninja story.",
		CoverURL:     "https://origin.example/covers/1234.jpg",
		Genres:       []string{"action", "adventure"},
		Status:       models.StatusReleased,
		Rating:       8.1,
		Year:         1999,
		Kind:         "manga",
		ChapterCount: 700,
	}
	if err := s.UpsertSeries(m); err != nil {
		t.Fatalf("UpsertSeries failed: %v", err)
	}

	got, err := s.GetSeries(1234)
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected series, got nil")
	}
	if got.TitleEnglish != "Naruto" || got.ChapterCount != 700 {
		t.Errorf("Unexpected series data: %+v", got)
	}
	if len(got.Genres) != 2 || got.Genres[0] != "action" {
		t.Errorf("Genres did not round-trip: %v", got.Genres)
	}
	if got.LastSynced.IsZero() {
		t.Error("last_synced should be stamped on upsert")
	}

	// Upsert again and verify the row is replaced, not duplicated.
	m.ChapterCount = 701
	if err := s.UpsertSeries(m); err != nil {
		t.Fatalf("UpsertSeries (update) failed: %v", err)
	}
	got, _ = s.GetSeries(1234)
	if got.ChapterCount != 701 {
		t.Errorf("Expected updated chapter count 701, got %d", got.ChapterCount)
	}
}

func TestGetSeriesMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)

	got, err := s.GetSeries(999)
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for unknown series, got %+v", got)
	}
}

func TestListStaleSeries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)

	for id := int64(1); id <= 3; id++ {
		if err := s.UpsertSeries(&models.SeriesMetadata{ID: id, Title: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	// Age two rows, the oldest furthest back.
	if _, err := db.Exec("UPDATE series SET last_synced = ? WHERE id = 1", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE series SET last_synced = ? WHERE id = 2", time.Now().Add(-30*time.Hour)); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListStaleSeries(24*time.Hour, 10)
	if err != nil {
		t.Fatalf("ListStaleSeries failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("Expected stale series [1 2] oldest first, got %v", ids)
	}

	ids, _ = s.ListStaleSeries(24*time.Hour, 1)
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Limit should cap at the oldest row, got %v", ids)
	}
}

func TestIsSeriesFresh(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)

	// Unknown series is never fresh.
	fresh, err := s.IsSeriesFresh(1, 24*time.Hour)
	if err != nil {
		t.Fatalf("IsSeriesFresh failed: %v", err)
	}
	if fresh {
		t.Error("Unknown series reported fresh")
	}

	if err := s.UpsertSeries(&models.SeriesMetadata{ID: 1, Title: "t"}); err != nil {
		t.Fatal(err)
	}
	fresh, _ = s.IsSeriesFresh(1, 24*time.Hour)
	if !fresh {
		t.Error("Just-synced series should be fresh")
	}

	// Age the row past the freshness window.
	if _, err := db.Exec("UPDATE series SET last_synced = ? WHERE id = 1", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatal(err)
	}
	fresh, _ = s.IsSeriesFresh(1, 24*time.Hour)
	if fresh {
		t.Error("Series synced 25h ago should not be fresh within 24h")
	}

	// A cache read must not refresh last_synced.
	if _, err := s.GetSeries(1); err != nil {
		t.Fatal(err)
	}
	fresh, _ = s.IsSeriesFresh(1, 24*time.Hour)
	if fresh {
		t.Error("GetSeries must not bump last_synced")
	}
}
