// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"

	"github.com/animanga/mangapipe/internal/models"
)

// Store provides all functions to interact with the database: the
// series metadata cache, the search result cache, the artifact cache
// and the per-user quota rows.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetCacheStats returns row and hit counts across the cache tables.
func (s *Store) GetCacheStats() (*models.CacheStats, error) {
	var stats models.CacheStats

	if err := s.db.QueryRow("SELECT COUNT(*) FROM series").Scan(&stats.SeriesCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&stats.ArtifactCount); err != nil {
		return nil, err
	}
	// SUM is NULL on an empty table.
	var hits sql.NullInt64
	err := s.db.QueryRow("SELECT COUNT(*), SUM(hit_count) FROM search_cache").Scan(&stats.SearchCacheEntries, &hits)
	if err != nil {
		return nil, err
	}
	stats.SearchCacheHits = hits.Int64

	return &stats, nil
}
