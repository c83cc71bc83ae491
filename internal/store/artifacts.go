package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/animanga/mangapipe/internal/models"
)

// GetArtifact returns the cached reference for a (series, chapter,
// format) key, or nil on a miss. Artifacts have no expiry; a chapter's
// pages do not change once produced.
func (s *Store) GetArtifact(seriesID int64, chapter float64, format models.ArtifactFormat) (*models.ArtifactRecord, error) {
	var rec models.ArtifactRecord
	var format2 string
	err := s.db.QueryRow(`
        SELECT series_id, chapter, format, reference, page_count, size_bytes, created_at
        FROM artifacts WHERE series_id = ? AND chapter = ? AND format = ?
    `, seriesID, chapter, string(format)).Scan(
		&rec.SeriesID, &rec.Chapter, &format2, &rec.Reference, &rec.PageCount, &rec.SizeBytes, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Format = models.ArtifactFormat(format2)
	return &rec, nil
}

// SaveArtifact upserts an artifact record. Last writer wins, which is
// harmless for concurrent misses on the same key because both writers
// produced the same chapter.
func (s *Store) SaveArtifact(rec *models.ArtifactRecord) error {
	rec.CreatedAt = time.Now()
	_, err := s.db.Exec(`
        INSERT INTO artifacts (series_id, chapter, format, reference, page_count, size_bytes, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(series_id, chapter, format) DO UPDATE SET
            reference = excluded.reference,
            page_count = excluded.page_count,
            size_bytes = excluded.size_bytes,
            created_at = excluded.created_at;
    `, rec.SeriesID, rec.Chapter, string(rec.Format), rec.Reference, rec.PageCount, rec.SizeBytes, rec.CreatedAt)
	return err
}

// DeleteArtifact drops a cached reference. Callers use this when a
// previously stored reference turns out to be invalid at delivery
// time, forcing the next request to re-run the pipeline.
func (s *Store) DeleteArtifact(seriesID int64, chapter float64, format models.ArtifactFormat) error {
	_, err := s.db.Exec("DELETE FROM artifacts WHERE series_id = ? AND chapter = ? AND format = ?",
		seriesID, chapter, string(format))
	return err
}
