package store

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/animanga/mangapipe/internal/models"
)

// Fingerprint derives the cache key for a (query, filters) pair. The
// query is lower-cased and trimmed, and the filters are serialized
// with sorted keys, so identical searches always collide to the same
// entry regardless of filter order.
func Fingerprint(query string, filters map[string]string) string {
	key := strings.ToLower(strings.TrimSpace(query))
	if len(filters) > 0 {
		// json.Marshal emits map keys in sorted order, which gives us
		// the canonical form for free.
		b, _ := json.Marshal(filters)
		key += string(b)
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GetSearchCache returns the ordered series IDs cached for the given
// query and filters, or nil if the entry is missing or expired. A
// successful read increments the entry's hit counter. Expired rows are
// left in place for the periodic sweep.
func (s *Store) GetSearchCache(query string, filters map[string]string) ([]int64, error) {
	fp := Fingerprint(query, filters)

	var results string
	err := s.db.QueryRow(`
        SELECT results FROM search_cache
        WHERE fingerprint = ? AND expires_at > ?
    `, fp, time.Now()).Scan(&results)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Single-statement increment so concurrent readers don't lose updates.
	if _, err := s.db.Exec("UPDATE search_cache SET hit_count = hit_count + 1 WHERE fingerprint = ?", fp); err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal([]byte(results), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveSearchCache upserts the result list for a query, resetting the
// hit counter and pushing expiry out by ttl.
func (s *Store) SaveSearchCache(query string, filters map[string]string, seriesIDs []int64, ttl time.Duration) error {
	fp := Fingerprint(query, filters)

	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return err
	}
	results, err := json.Marshal(seriesIDs)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.Exec(`
        INSERT INTO search_cache (fingerprint, query_text, filters, results, hit_count, created_at, expires_at)
        VALUES (?, ?, ?, ?, 0, ?, ?)
        ON CONFLICT(fingerprint) DO UPDATE SET
            query_text = excluded.query_text,
            filters = excluded.filters,
            results = excluded.results,
            hit_count = 0,
            created_at = excluded.created_at,
            expires_at = excluded.expires_at;
    `, fp, query, string(filtersJSON), string(results), now, now.Add(ttl))
	return err
}

// GetSearchCacheEntry returns the raw cache row for a fingerprint
// regardless of expiry. Used by tests and the stats endpoint.
func (s *Store) GetSearchCacheEntry(fingerprint string) (*models.SearchCacheEntry, error) {
	var e models.SearchCacheEntry
	var results string
	err := s.db.QueryRow(`
        SELECT fingerprint, query_text, results, hit_count, created_at, expires_at
        FROM search_cache WHERE fingerprint = ?
    `, fingerprint).Scan(&e.Fingerprint, &e.Query, &results, &e.HitCount, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(results), &e.SeriesIDs); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteExpiredSearchCache removes expired search cache rows and
// returns how many were deleted. This is the only destructive
// maintenance operation in the system; it runs on a schedule.
func (s *Store) DeleteExpiredSearchCache() (int64, error) {
	res, err := s.db.Exec("DELETE FROM search_cache WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
