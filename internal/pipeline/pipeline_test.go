package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"testing"

	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/store"
	"github.com/animanga/mangapipe/internal/testutil"
)

// fakeOrigin serves a fixed page list and fails the URLs listed in
// failPages.
type fakeOrigin struct {
	pages     []string
	failPages map[string]bool
	downloads int
}

func (f *fakeOrigin) GetChapterPages(ctx context.Context, seriesID int64, chapterID string) ([]string, error) {
	return f.pages, nil
}

func (f *fakeOrigin) DownloadImage(ctx context.Context, imgURL string) ([]byte, error) {
	f.downloads++
	if f.failPages[imgURL] {
		return nil, fmt.Errorf("connection reset")
	}
	return testPNG(), nil
}

type fakeBlob struct {
	err    error
	stored [][]byte
}

func (f *fakeBlob) Store(ctx context.Context, data []byte, filename string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, data)
	return fmt.Sprintf("handle-%d", len(f.stored)), nil
}

type fakePublisher struct {
	err   error
	title string
	urls  []string
}

func (f *fakePublisher) CreatePage(ctx context.Context, title string, imageURLs []string, author string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.title = title
	f.urls = imageURLs
	return "https://pages.example/published-1", nil
}

// testPNG returns a tiny valid PNG image.
func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func pageList(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://img.example/p%d.jpg", i+1)
	}
	return urls
}

func newTestPipeline(t *testing.T, o Origin, b *fakeBlob, pub *fakePublisher) (*Pipeline, *store.Store) {
	t.Helper()
	st := store.New(testutil.SetupTestDB(t))
	return New(Options{
		Origin:        o,
		BlobStore:     b,
		Publisher:     pub,
		Store:         st,
		PublishAuthor: "mangapipe",
	}), st
}

func docRequest() Request {
	return Request{
		RequestID:   "req-1",
		SeriesID:    42,
		SeriesTitle: "Naruto",
		ChapterID:   "ch-100",
		Chapter:     100,
		Format:      models.FormatDocument,
	}
}

func TestRunDocumentPartialFailure(t *testing.T) {
	o := &fakeOrigin{
		pages: pageList(5),
		failPages: map[string]bool{
			"https://img.example/p2.jpg": true,
			"https://img.example/p4.jpg": true,
		},
	}
	b := &fakeBlob{}
	p, st := newTestPipeline(t, o, b, &fakePublisher{})

	result, err := p.Run(context.Background(), docRequest(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PageCount != 3 || result.PagesFailed != 2 {
		t.Errorf("Expected 3 pages with 2 failures, got %d/%d", result.PageCount, result.PagesFailed)
	}
	if !result.Cached || result.Reference != "handle-1" {
		t.Errorf("Expected cached result with blob handle, got %+v", result)
	}

	// Surviving pages keep their original order and numbering.
	zr, err := zip.NewReader(bytes.NewReader(result.Data), int64(len(result.Data)))
	if err != nil {
		t.Fatalf("Result is not a valid archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"page_001.jpg", "page_003.jpg", "page_005.jpg"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d archive entries, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, want[i], names[i])
		}
	}

	// The artifact record was written.
	rec, err := st.GetArtifact(42, 100, models.FormatDocument)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Reference != "handle-1" || rec.PageCount != 3 {
		t.Errorf("Unexpected artifact record: %+v", rec)
	}
}

func TestRunDocumentAllPagesFail(t *testing.T) {
	o := &fakeOrigin{pages: pageList(3), failPages: map[string]bool{
		"https://img.example/p1.jpg": true,
		"https://img.example/p2.jpg": true,
		"https://img.example/p3.jpg": true,
	}}
	p, st := newTestPipeline(t, o, &fakeBlob{}, &fakePublisher{})

	_, err := p.Run(context.Background(), docRequest(), nil)
	if !errors.Is(err, ErrEmptyArtifact) {
		t.Fatalf("Expected ErrEmptyArtifact, got %v", err)
	}
	if rec, _ := st.GetArtifact(42, 100, models.FormatDocument); rec != nil {
		t.Errorf("Nothing should be cached on empty artifact, got %+v", rec)
	}
}

func TestRunNoPages(t *testing.T) {
	o := &fakeOrigin{pages: nil}
	p, _ := newTestPipeline(t, o, &fakeBlob{}, &fakePublisher{})

	_, err := p.Run(context.Background(), docRequest(), nil)
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("Expected ErrNoPages, got %v", err)
	}
}

func TestRunDocumentTooLarge(t *testing.T) {
	o := &fakeOrigin{pages: pageList(2)}
	st := store.New(testutil.SetupTestDB(t))
	b := &fakeBlob{}
	p := New(Options{
		Origin:           o,
		BlobStore:        b,
		Store:            st,
		MaxArtifactBytes: 10, // far below any real archive
	})

	_, err := p.Run(context.Background(), docRequest(), nil)
	if !errors.Is(err, ErrArtifactTooLarge) {
		t.Fatalf("Expected ErrArtifactTooLarge, got %v", err)
	}
	if len(b.stored) != 0 {
		t.Error("Oversized artifact must not reach the blob store")
	}
	if rec, _ := st.GetArtifact(42, 100, models.FormatDocument); rec != nil {
		t.Errorf("Nothing should be cached on size rejection, got %+v", rec)
	}
}

func TestRunDocumentBlobFailureDegrades(t *testing.T) {
	o := &fakeOrigin{pages: pageList(2)}
	b := &fakeBlob{err: fmt.Errorf("storage unavailable")}
	p, st := newTestPipeline(t, o, b, &fakePublisher{})

	result, err := p.Run(context.Background(), docRequest(), nil)
	if err != nil {
		t.Fatalf("Blob failure should degrade, not fail: %v", err)
	}
	if result.Cached || result.Reference != "" {
		t.Errorf("Degraded result must not claim to be cached: %+v", result)
	}
	if len(result.Data) == 0 {
		t.Error("Degraded result must still carry the document for delivery")
	}
	if rec, _ := st.GetArtifact(42, 100, models.FormatDocument); rec != nil {
		t.Errorf("No record should be written in degraded mode, got %+v", rec)
	}
}

func TestRunPublished(t *testing.T) {
	o := &fakeOrigin{pages: pageList(3)}
	pub := &fakePublisher{}
	p, st := newTestPipeline(t, o, &fakeBlob{}, pub)

	req := docRequest()
	req.Format = models.FormatPublished
	result, err := p.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Reference != "https://pages.example/published-1" || !result.Cached {
		t.Errorf("Unexpected result: %+v", result)
	}
	if o.downloads != 0 {
		t.Errorf("Publish path must not download images, got %d downloads", o.downloads)
	}
	if pub.title != "Naruto - Chapter 100" {
		t.Errorf("Unexpected page title: %s", pub.title)
	}
	if len(pub.urls) != 3 || pub.urls[0] != "https://img.example/p1.jpg" {
		t.Errorf("Page URLs out of order: %v", pub.urls)
	}

	rec, _ := st.GetArtifact(42, 100, models.FormatPublished)
	if rec == nil || rec.Reference != result.Reference {
		t.Errorf("Published URL not recorded: %+v", rec)
	}
}

func TestRunPublishedFailureIsTerminal(t *testing.T) {
	o := &fakeOrigin{pages: pageList(1)}
	pub := &fakePublisher{err: fmt.Errorf("service down")}
	p, st := newTestPipeline(t, o, &fakeBlob{}, pub)

	req := docRequest()
	req.Format = models.FormatPublished
	if _, err := p.Run(context.Background(), req, nil); err == nil {
		t.Fatal("Expected publish failure to surface")
	}
	if rec, _ := st.GetArtifact(42, 100, models.FormatPublished); rec != nil {
		t.Errorf("Nothing should be cached on publish failure, got %+v", rec)
	}
}

func TestRunProgressCadence(t *testing.T) {
	o := &fakeOrigin{pages: pageList(12)}
	p, _ := newTestPipeline(t, o, &fakeBlob{}, &fakePublisher{})

	var downloads []int
	var final models.ProgressUpdate
	_, err := p.Run(context.Background(), docRequest(), func(u models.ProgressUpdate) {
		if u.Stage == "downloading" {
			downloads = append(downloads, u.Current)
		}
		final = u
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Reports every 5 pages plus the final page.
	want := []int{5, 10, 12}
	if len(downloads) != len(want) {
		t.Fatalf("Expected download reports at %v, got %v", want, downloads)
	}
	for i := range want {
		if downloads[i] != want[i] {
			t.Errorf("Report %d: expected page %d, got %d", i, want[i], downloads[i])
		}
	}
	if !final.Done {
		t.Error("Last progress update should be marked done")
	}
}
