// Package service ties the caches, the origin client, the quota
// manager and the acquisition pipeline together behind one facade.
// Handlers talk to this package only.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/singleflight"

	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/pipeline"
	"github.com/animanga/mangapipe/internal/quota"
	"github.com/animanga/mangapipe/internal/store"
	"github.com/animanga/mangapipe/internal/util"
)

// Catalog is the slice of the origin client the service needs.
type Catalog interface {
	Search(ctx context.Context, query string, filters map[string]string, limit, page int) ([]*models.SeriesMetadata, models.PageInfo, error)
	GetSeries(ctx context.Context, seriesID int64) (*models.SeriesMetadata, error)
}

// Acquirer runs the chapter acquisition pipeline.
type Acquirer interface {
	Run(ctx context.Context, req pipeline.Request, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// Broadcaster pushes progress updates to connected listeners.
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

// Recorder is the subset of the metrics collector used here.
type Recorder interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)  {}
func (nopRecorder) CacheMiss(string) {}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastJSON(interface{}) {}

// QuotaExceededError is returned when a chapter request is denied by
// the quota manager. Cache hits never produce it.
type QuotaExceededError struct {
	Reason string
}

func (e *QuotaExceededError) Error() string { return e.Reason }

type Options struct {
	Store          *store.Store
	Catalog        Catalog
	Pipeline       Acquirer
	Quotas         *quota.Manager
	Hub            Broadcaster
	Metrics        Recorder
	SearchTTL      time.Duration // default 24h
	MetadataMaxAge time.Duration // default 24h
	SearchPageSize int           // default 10
}

type Service struct {
	st             *store.Store
	catalog        Catalog
	pipe           Acquirer
	quotas         *quota.Manager
	hub            Broadcaster
	metrics        Recorder
	searchTTL      time.Duration
	metadataMaxAge time.Duration
	searchPageSize int
	sanitizer      *bluemonday.Policy

	// Concurrent misses for the same chapter collapse into one
	// pipeline run.
	acquireGroup singleflight.Group
}

func New(opts Options) *Service {
	if opts.SearchTTL == 0 {
		opts.SearchTTL = 24 * time.Hour
	}
	if opts.MetadataMaxAge == 0 {
		opts.MetadataMaxAge = 24 * time.Hour
	}
	if opts.SearchPageSize == 0 {
		opts.SearchPageSize = 10
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Hub == nil {
		opts.Hub = nopBroadcaster{}
	}
	return &Service{
		st:             opts.Store,
		catalog:        opts.Catalog,
		pipe:           opts.Pipeline,
		quotas:         opts.Quotas,
		hub:            opts.Hub,
		metrics:        opts.Metrics,
		searchTTL:      opts.SearchTTL,
		metadataMaxAge: opts.MetadataMaxAge,
		searchPageSize: opts.SearchPageSize,
		sanitizer:      bluemonday.StrictPolicy(),
	}
}

// SearchResult is one page of catalog search results.
type SearchResult struct {
	Series   []*models.SeriesMetadata `json:"series"`
	PageInfo models.PageInfo          `json:"page_info"`
	Cached   bool                     `json:"cached"`
}

// Search serves a catalog search, preferring the search cache for
// first-page queries. A cache hit is only usable when every cached
// series ID still resolves in the metadata cache; otherwise the query
// goes to the origin and both caches are rewarmed.
func (s *Service) Search(ctx context.Context, query string, filters map[string]string, page int) (*SearchResult, error) {
	if page < 1 {
		page = 1
	}

	// Only the first page is cached; deeper pages are rare enough to
	// always pass through.
	if page == 1 {
		ids, err := s.st.GetSearchCache(query, filters)
		if err != nil {
			return nil, err
		}
		if ids != nil {
			// All-or-nothing: one unresolvable ID turns the hit into a
			// miss rather than silently shrinking the result page; the
			// refetch below rewarms both caches.
			series, ok, err := s.resolveSeries(ids)
			if err != nil {
				return nil, err
			}
			if ok {
				s.metrics.CacheHit("search")
				return &SearchResult{
					Series:   series,
					PageInfo: models.PageInfo{Page: 1, Items: len(series)},
					Cached:   true,
				}, nil
			}
		}
		s.metrics.CacheMiss("search")
	}

	series, pageInfo, err := s.catalog.Search(ctx, query, filters, s.searchPageSize, page)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(series))
	for _, m := range series {
		m.Description = s.sanitizer.Sanitize(m.Description)
		if err := s.st.UpsertSeries(m); err != nil {
			return nil, fmt.Errorf("could not cache series %d: %w", m.ID, err)
		}
		ids = append(ids, m.ID)
	}

	if page == 1 && len(ids) > 0 {
		if err := s.st.SaveSearchCache(query, filters, ids, s.searchTTL); err != nil {
			// The response is already complete; a cache write failure
			// only costs the next request an origin round trip.
			log.Printf("Could not save search cache for %q: %v", query, err)
		}
	}

	return &SearchResult{Series: series, PageInfo: pageInfo}, nil
}

func (s *Service) resolveSeries(ids []int64) ([]*models.SeriesMetadata, bool, error) {
	series := make([]*models.SeriesMetadata, 0, len(ids))
	for _, id := range ids {
		m, err := s.st.GetSeries(id)
		if err != nil {
			return nil, false, err
		}
		if m == nil {
			return nil, false, nil
		}
		series = append(series, m)
	}
	return series, true, nil
}

// GetSeries returns series metadata, from the cache when it is still
// fresh. A stale entry triggers an origin refresh; if the origin
// fails or no longer knows the series, the stale entry is served
// rather than nothing.
func (s *Service) GetSeries(ctx context.Context, seriesID int64) (*models.SeriesMetadata, error) {
	fresh, err := s.st.IsSeriesFresh(seriesID, s.metadataMaxAge)
	if err != nil {
		return nil, err
	}
	if fresh {
		s.metrics.CacheHit("metadata")
		return s.st.GetSeries(seriesID)
	}
	s.metrics.CacheMiss("metadata")

	m, err := s.catalog.GetSeries(ctx, seriesID)
	if err != nil || m == nil {
		cached, cacheErr := s.st.GetSeries(seriesID)
		if cacheErr == nil && cached != nil {
			if err != nil {
				log.Printf("Origin refresh failed for series %d, serving stale metadata: %v", seriesID, err)
			}
			return cached, nil
		}
		return nil, err
	}

	m.Description = s.sanitizer.Sanitize(m.Description)
	if err := s.st.UpsertSeries(m); err != nil {
		return nil, fmt.Errorf("could not cache series %d: %w", seriesID, err)
	}
	return m, nil
}

// ChapterRequest identifies one chapter acquisition on behalf of a
// user.
type ChapterRequest struct {
	UserID      int64
	Tier        models.Tier
	SeriesID    int64
	SeriesTitle string
	ChapterID   string
	Chapter     float64
	Format      models.ArtifactFormat
}

// ChapterDelivery is what the caller gets back: a cached record, or a
// freshly built artifact (possibly uncached in degraded mode).
type ChapterDelivery struct {
	Reference string                `json:"reference"`
	Format    models.ArtifactFormat `json:"format"`
	PageCount int                   `json:"page_count"`
	SizeBytes int64                 `json:"size_bytes"`
	Cached    bool                  `json:"cached"`
	Data      []byte                `json:"-"`
}

// GetChapterArtifact serves one chapter. Cache hits are free and do
// not touch the user's quota; misses are quota-gated and run the
// pipeline, with concurrent requests for the same chapter sharing a
// single run.
func (s *Service) GetChapterArtifact(ctx context.Context, req ChapterRequest) (*ChapterDelivery, error) {
	rec, err := s.st.GetArtifact(req.SeriesID, req.Chapter, req.Format)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.metrics.CacheHit("artifact")
		return &ChapterDelivery{
			Reference: rec.Reference,
			Format:    rec.Format,
			PageCount: rec.PageCount,
			SizeBytes: rec.SizeBytes,
			Cached:    true,
		}, nil
	}
	s.metrics.CacheMiss("artifact")

	decision, err := s.quotas.Check(req.UserID, req.Tier)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &QuotaExceededError{Reason: decision.Reason}
	}

	key := fmt.Sprintf("%d:%s:%s", req.SeriesID, util.FormatChapter(req.Chapter), req.Format)
	v, err, _ := s.acquireGroup.Do(key, func() (interface{}, error) {
		// The run is detached from the caller's context: an abandoned
		// or timed-out request must not abort a build that other
		// waiters share and whose result gets cached either way.
		return s.pipe.Run(context.WithoutCancel(ctx), pipeline.Request{
			RequestID:   uuid.NewString(),
			SeriesID:    req.SeriesID,
			SeriesTitle: req.SeriesTitle,
			ChapterID:   req.ChapterID,
			Chapter:     req.Chapter,
			Format:      req.Format,
		}, func(u models.ProgressUpdate) {
			s.hub.BroadcastJSON(u)
		})
	})
	if err != nil {
		return nil, err
	}
	result := v.(*pipeline.Result)

	// Every caller that received the chapter is charged, including
	// those that piggybacked on a shared pipeline run.
	if err := s.quotas.RecordUsage(req.UserID); err != nil {
		log.Printf("Could not record quota usage for user %d: %v", req.UserID, err)
	}

	return &ChapterDelivery{
		Reference: result.Reference,
		Format:    req.Format,
		PageCount: result.PageCount,
		SizeBytes: result.SizeBytes,
		Cached:    result.Cached,
		Data:      result.Data,
	}, nil
}

// CacheStats reports cache table sizes for the admin endpoint.
func (s *Service) CacheStats() (*models.CacheStats, error) {
	return s.st.GetCacheStats()
}
