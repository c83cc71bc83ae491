// The acquisition pipeline turns one remote chapter into a durable,
// reusable artifact: fetch the page list, download and normalize each
// page, assemble a single-file document (or publish an external page),
// store it, and record the reference in the artifact cache.
//
// The pipeline holds no state across calls; everything it touches is
// owned by the store or the external collaborators.

package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/animanga/mangapipe/internal/blob"
	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/publish"
	"github.com/animanga/mangapipe/internal/store"
)

// How often progress is reported while pages download.
const progressEvery = 5

// Origin is the slice of the origin client the pipeline uses.
type Origin interface {
	GetChapterPages(ctx context.Context, seriesID int64, chapterID string) ([]string, error)
	DownloadImage(ctx context.Context, imgURL string) ([]byte, error)
}

// Recorder is the slice of the metrics collector the pipeline uses.
type Recorder interface {
	ArtifactBuilt(format string)
	PageSkipped()
}

type nopRecorder struct{}

func (nopRecorder) ArtifactBuilt(string) {}
func (nopRecorder) PageSkipped()         {}

// ProgressFunc receives pipeline progress updates. It may be nil.
type ProgressFunc func(models.ProgressUpdate)

// Request identifies the chapter to acquire and the output format.
type Request struct {
	RequestID   string
	SeriesID    int64
	SeriesTitle string
	ChapterID   string  // origin-side chapter identifier
	Chapter     float64 // numeric chapter number
	Format      models.ArtifactFormat
}

// Result is what the pipeline hands back. Reference is the cached
// handle or URL. When blob storage or the record write failed, Cached
// is false and Data still carries the assembled document so the
// original caller gets its chapter; the next request re-runs the
// pipeline.
type Result struct {
	Reference   string
	Data        []byte
	PageCount   int
	PagesFailed int
	SizeBytes   int64
	Cached      bool
}

// Pipeline orchestrates chapter acquisition.
type Pipeline struct {
	origin    Origin
	blobStore blob.Store
	publisher publish.Publisher
	st        *store.Store
	metrics   Recorder

	maxArtifactBytes int64
	jpegQuality      int
	maxPageWidth     uint
	publishAuthor    string
}

// Options configures a Pipeline.
type Options struct {
	Origin           Origin
	BlobStore        blob.Store
	Publisher        publish.Publisher
	Store            *store.Store
	Metrics          Recorder
	MaxArtifactBytes int64
	JPEGQuality      int
	MaxPageWidth     uint
	PublishAuthor    string
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.MaxArtifactBytes == 0 {
		opts.MaxArtifactBytes = 50 << 20
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = 85
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	return &Pipeline{
		origin:           opts.Origin,
		blobStore:        opts.BlobStore,
		publisher:        opts.Publisher,
		st:               opts.Store,
		metrics:          opts.Metrics,
		maxArtifactBytes: opts.MaxArtifactBytes,
		jpegQuality:      opts.JPEGQuality,
		maxPageWidth:     opts.MaxPageWidth,
		publishAuthor:    opts.PublishAuthor,
	}
}

// Run executes the full acquisition for one chapter request.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	report := func(stage, message string, current, total int, done bool) {
		if progress != nil {
			progress(models.ProgressUpdate{
				RequestID: req.RequestID,
				SeriesID:  req.SeriesID,
				Chapter:   req.Chapter,
				Stage:     stage,
				Message:   message,
				Current:   current,
				Total:     total,
				Done:      done,
			})
		}
	}

	report("fetching_page_list", "Resolving chapter pages...", 0, 0, false)
	pageURLs, err := p.origin.GetChapterPages(ctx, req.SeriesID, req.ChapterID)
	if err != nil {
		return nil, fmt.Errorf("could not get page list: %w", err)
	}
	if len(pageURLs) == 0 {
		return nil, ErrNoPages
	}

	if req.Format == models.FormatPublished {
		return p.runPublish(ctx, req, pageURLs, report)
	}
	return p.runDocument(ctx, req, pageURLs, report)
}

// runDocument downloads and normalizes every page, then packs the
// survivors into a CBZ archive and stores it.
func (p *Pipeline) runDocument(ctx context.Context, req Request, pageURLs []string, report func(string, string, int, int, bool)) (*Result, error) {
	total := len(pageURLs)

	type page struct {
		index int
		data  []byte
	}
	var pages []page
	failed := 0

	for i, pageURL := range pageURLs {
		data, err := p.origin.DownloadImage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Skipping page %d/%d of series %d chapter %s: %v", i+1, total, req.SeriesID, req.ChapterID, err)
			p.metrics.PageSkipped()
			failed++
		} else {
			normalized, err := normalizePage(data, p.maxPageWidth, p.jpegQuality)
			if err != nil {
				log.Printf("Skipping undecodable page %d/%d of series %d chapter %s: %v", i+1, total, req.SeriesID, req.ChapterID, err)
				p.metrics.PageSkipped()
				failed++
			} else {
				pages = append(pages, page{index: i, data: normalized})
			}
		}

		if (i+1)%progressEvery == 0 || i+1 == total {
			report("downloading", fmt.Sprintf("Downloaded page %d of %d", i+1, total), i+1, total, false)
		}
	}

	if len(pages) == 0 {
		return nil, ErrEmptyArtifact
	}

	report("assembling", fmt.Sprintf("Packing %d pages...", len(pages)), len(pages), total, false)

	// Pack in original catalog order, keeping the original page numbers
	// in the file names so gaps from skipped pages stay visible.
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)
	for _, pg := range pages {
		f, err := zipWriter.Create(fmt.Sprintf("page_%03d.jpg", pg.index+1))
		if err != nil {
			return nil, fmt.Errorf("failed to create file in archive: %w", err)
		}
		if _, err := f.Write(pg.data); err != nil {
			return nil, fmt.Errorf("failed to write page to archive: %w", err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	size := int64(buf.Len())
	if size > p.maxArtifactBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrArtifactTooLarge, size)
	}

	result := &Result{
		Data:        buf.Bytes(),
		PageCount:   len(pages),
		PagesFailed: failed,
		SizeBytes:   size,
	}

	filename := fmt.Sprintf("series_%d_chapter_%g.cbz", req.SeriesID, req.Chapter)
	handle, err := p.blobStore.Store(ctx, buf.Bytes(), filename)
	if err != nil {
		// Degraded mode: deliver the document to the caller without
		// caching; the next request repeats the pipeline.
		log.Printf("Blob store failed for %s, delivering uncached: %v", filename, err)
		report("done", "Chapter ready (not cached)", total, total, true)
		return result, nil
	}
	result.Reference = handle

	p.metrics.ArtifactBuilt(string(models.FormatDocument))

	if err := p.saveRecord(req, handle, result); err != nil {
		log.Printf("Could not record artifact for %s: %v", filename, err)
		report("done", "Chapter ready (not cached)", total, total, true)
		return result, nil
	}
	result.Cached = true

	report("cached", "Chapter ready", total, total, true)
	return result, nil
}

// runPublish hands the ordered page URLs to the external page host.
// Nothing is downloaded, so this path has no size ceiling.
func (p *Pipeline) runPublish(ctx context.Context, req Request, pageURLs []string, report func(string, string, int, int, bool)) (*Result, error) {
	total := len(pageURLs)
	report("publishing", fmt.Sprintf("Publishing %d pages...", total), 0, total, false)

	title := fmt.Sprintf("%s - Chapter %g", req.SeriesTitle, req.Chapter)
	url, err := p.publisher.CreatePage(ctx, title, pageURLs, p.publishAuthor)
	if err != nil {
		// Publish failures are terminal for the request; there is no
		// fallback to the document format.
		return nil, err
	}

	result := &Result{
		Reference: url,
		PageCount: total,
	}

	p.metrics.ArtifactBuilt(string(models.FormatPublished))

	if err := p.saveRecord(req, url, result); err != nil {
		log.Printf("Could not record published page for series %d chapter %g: %v", req.SeriesID, req.Chapter, err)
		report("done", "Chapter published (not cached)", total, total, true)
		return result, nil
	}
	result.Cached = true

	report("cached", "Chapter published", total, total, true)
	return result, nil
}

func (p *Pipeline) saveRecord(req Request, reference string, result *Result) error {
	return p.st.SaveArtifact(&models.ArtifactRecord{
		SeriesID:  req.SeriesID,
		Chapter:   req.Chapter,
		Format:    req.Format,
		Reference: reference,
		PageCount: result.PageCount,
		SizeBytes: result.SizeBytes,
	})
}
