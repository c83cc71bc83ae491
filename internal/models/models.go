// This file defines the core data structures (models) for the
// acquisition and caching engine: cached series metadata, search cache
// entries, artifact records and per-user quotas.

package models

import "time"

// SeriesStatus is the publication status reported by the origin catalog.
type SeriesStatus string

const (
	StatusOngoing  SeriesStatus = "ongoing"
	StatusReleased SeriesStatus = "released"
	StatusUnknown  SeriesStatus = "unknown"
)

// SeriesMetadata is a catalog entry cached from the origin API.
// LastSynced is bumped on every successful origin fetch, never on a
// cache read.
type SeriesMetadata struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	TitleEnglish string       `json:"title_english"`
	Description  string       `json:"description"`
	CoverURL     string       `json:"cover_url"`
	Genres       []string     `json:"genres"`
	Status       SeriesStatus `json:"status"`
	Rating       float64      `json:"rating"`
	Year         int          `json:"year"`
	Kind         string       `json:"kind"` // manga, manhwa, manhua
	ChapterCount int          `json:"chapter_count"`
	LastSynced   time.Time    `json:"last_synced"`
}

// SearchCacheEntry maps a fingerprinted (query, filters) pair to an
// ordered list of series IDs.
type SearchCacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Query       string    `json:"query"`
	SeriesIDs   []int64   `json:"series_ids"`
	HitCount    int64     `json:"hit_count"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ArtifactFormat selects the deliverable produced by the pipeline.
type ArtifactFormat string

const (
	FormatDocument  ArtifactFormat = "document"  // single-file CBZ archive
	FormatPublished ArtifactFormat = "published" // externally hosted page URL
)

// ArtifactRecord is the cached result of acquiring one chapter. The
// (SeriesID, Chapter, Format) triple is unique; Reference is either a
// blob-store handle or an external URL depending on Format.
type ArtifactRecord struct {
	SeriesID  int64          `json:"series_id"`
	Chapter   float64        `json:"chapter"`
	Format    ArtifactFormat `json:"format"`
	Reference string         `json:"reference"`
	PageCount int            `json:"page_count"`
	SizeBytes int64          `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
}

// Tier is a user's quota class.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// UserQuota tracks per-user request counters on daily/monthly windows.
// The daily counter resets on the first request of a new calendar day;
// the monthly counter only resets via an explicit external reset.
type UserQuota struct {
	UserID          int64     `json:"user_id"`
	Tier            Tier      `json:"tier"`
	DailyRequests   int       `json:"daily_requests"`
	MonthlyRequests int       `json:"monthly_requests"`
	LastRequestDate string    `json:"last_request_date"` // YYYY-MM-DD
	CreatedAt       time.Time `json:"created_at"`
}

// ProgressUpdate is broadcast to callers while a chapter is acquired.
type ProgressUpdate struct {
	RequestID string  `json:"request_id"`
	SeriesID  int64   `json:"series_id"`
	Chapter   float64 `json:"chapter"`
	Stage     string  `json:"stage"`
	Message   string  `json:"message"`
	Current   int     `json:"current"`
	Total     int     `json:"total"`
	Done      bool    `json:"done"`
}

// PageInfo carries origin pagination data back to the caller.
type PageInfo struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Items int `json:"items"`
}

// CacheStats summarizes the state of the cache tables.
type CacheStats struct {
	SeriesCount        int64 `json:"series_count"`
	ArtifactCount      int64 `json:"artifact_count"`
	SearchCacheEntries int64 `json:"search_cache_entries"`
	SearchCacheHits    int64 `json:"search_cache_hits"`
}
