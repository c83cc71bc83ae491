package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/animanga/mangapipe/internal/models"
)

// UpsertSeries inserts or replaces a series metadata row and stamps
// last_synced with the current time. Only successful origin fetches
// should call this; cache reads never touch last_synced.
func (s *Store) UpsertSeries(m *models.SeriesMetadata) error {
	genres, err := json.Marshal(m.Genres)
	if err != nil {
		return err
	}

	m.LastSynced = time.Now()
	_, err = s.db.Exec(`
        INSERT INTO series (id, title, title_english, description, cover_url, genres, status, rating, year, kind, chapter_count, last_synced)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            title_english = excluded.title_english,
            description = excluded.description,
            cover_url = excluded.cover_url,
            genres = excluded.genres,
            status = excluded.status,
            rating = excluded.rating,
            year = excluded.year,
            kind = excluded.kind,
            chapter_count = excluded.chapter_count,
            last_synced = excluded.last_synced;
    `, m.ID, m.Title, m.TitleEnglish, m.Description, m.CoverURL, string(genres),
		string(m.Status), m.Rating, m.Year, m.Kind, m.ChapterCount, m.LastSynced)
	return err
}

// GetSeries returns the cached metadata for a series, or nil if the
// series has never been synced.
func (s *Store) GetSeries(seriesID int64) (*models.SeriesMetadata, error) {
	var m models.SeriesMetadata
	var genres string
	var status string
	err := s.db.QueryRow(`
        SELECT id, title, title_english, description, cover_url, genres, status, rating, year, kind, chapter_count, last_synced
        FROM series WHERE id = ?
    `, seriesID).Scan(&m.ID, &m.Title, &m.TitleEnglish, &m.Description, &m.CoverURL,
		&genres, &status, &m.Rating, &m.Year, &m.Kind, &m.ChapterCount, &m.LastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Status = models.SeriesStatus(status)
	if err := json.Unmarshal([]byte(genres), &m.Genres); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListStaleSeries returns the IDs of series whose metadata is older
// than maxAge, oldest first, capped at limit.
func (s *Store) ListStaleSeries(maxAge time.Duration, limit int) ([]int64, error) {
	cutoff := time.Now().Add(-maxAge)
	rows, err := s.db.Query(`
        SELECT id FROM series WHERE last_synced < ? ORDER BY last_synced ASC LIMIT ?
    `, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsSeriesFresh reports whether the cached row for seriesID exists and
// was synced within maxAge.
func (s *Store) IsSeriesFresh(seriesID int64, maxAge time.Duration) (bool, error) {
	var lastSynced time.Time
	err := s.db.QueryRow("SELECT last_synced FROM series WHERE id = ?", seriesID).Scan(&lastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Since(lastSynced) < maxAge, nil
}
