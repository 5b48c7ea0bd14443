package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"docatlas/internal/crawler"
	"docatlas/internal/faults"
	"docatlas/internal/gcs"
	"docatlas/internal/store"
	"docatlas/models"
)

type fakeStore struct {
	claims    map[string]*store.ClaimResult
	finalised map[uuid.UUID][]models.Chunk
	filenames map[uuid.UUID]string
	processed map[uuid.UUID]*string
	failed    map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claims:    map[string]*store.ClaimResult{},
		finalised: map[uuid.UUID][]models.Chunk{},
		filenames: map[uuid.UUID]string{},
		processed: map[uuid.UUID]*string{},
		failed:    map[uuid.UUID]string{},
	}
}

func (f *fakeStore) ClaimDocument(ctx context.Context, filename, originalGCS string, generation int64) (*store.ClaimResult, error) {
	if existing, ok := f.claims[originalGCS]; ok {
		return &store.ClaimResult{DocID: existing.DocID, Status: existing.Status, Fresh: false}, nil
	}
	res := &store.ClaimResult{DocID: uuid.New(), Status: models.StatusProcessing, Fresh: true}
	f.claims[originalGCS] = res
	return res, nil
}

func (f *fakeStore) FinaliseSuccess(ctx context.Context, docID uuid.UUID, filename string, processedGCS *string, chunks []models.Chunk) error {
	f.finalised[docID] = chunks
	f.filenames[docID] = filename
	f.processed[docID] = processedGCS
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, docID uuid.UUID, message string) error {
	f.failed[docID] = message
	return nil
}

type fakeGateway struct {
	files      map[string][]byte // object name -> current content
	byGen      map[int64][]byte  // generation -> content for pinned reads
	generation int64
	meta       string
	uploaded   map[string][]byte
	workRoot   string
	fetchedGen int64
}

func (f *fakeGateway) Stat(ctx context.Context, bucket, name string) (int64, string, error) {
	if _, ok := f.files[name]; !ok {
		return 0, "", faults.Newf(faults.NotFound, "fake.Stat", "object %s not found", name)
	}
	return f.generation, f.meta, nil
}

func (f *fakeGateway) Fetch(ctx context.Context, bucket, name string, generation int64, destDir string) (*gcs.FetchResult, error) {
	f.fetchedGen = generation
	data, ok := f.files[name]
	if !ok {
		return nil, faults.Newf(faults.NotFound, "fake.Fetch", "object %s not found", name)
	}
	if generation > 0 {
		if pinned, ok := f.byGen[generation]; ok {
			data = pinned
		}
	}
	path := filepath.Join(destDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &gcs.FetchResult{LocalPath: path, Generation: f.generation, OriginalFilename: f.meta, Size: int64(len(data))}, nil
}

func (f *fakeGateway) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[name] = data
	return gcs.URI(bucket, name), nil
}

func (f *fakeGateway) NewWorkDir(docID string) (string, func(), error) {
	dir, err := os.MkdirTemp(f.workRoot, "ingest-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

type fakeEmbedder struct {
	dim   int
	calls [][]string
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

type fakeExtractor struct {
	pages []Page
	err   error
}

func (f *fakeExtractor) ExtractPDF(ctx context.Context, path string) ([]Page, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.pages, joinPages(f.pages), nil
}

type fakePageFetcher struct {
	page *crawler.PageContent
	err  error
}

func (f *fakePageFetcher) Fetch(ctx context.Context, rawURL string) (*crawler.PageContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func newTestIngest(t *testing.T, st *fakeStore, gw *fakeGateway, ex PDFExtractor, fetcher URLFetcher) *IngestService {
	t.Helper()
	gw.workRoot = t.TempDir()
	ch, err := NewChunkerService(800, 200, 10000, 500)
	if err != nil {
		t.Fatal(err)
	}
	return NewIngestService(st, gw, ex, ch, &fakeEmbedder{dim: 4}, fetcher, "processed")
}

func TestIngestObjectTxt(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{"notes.txt": []byte("hello\nworld")}, generation: 17}
	is := newTestIngest(t, st, gw, &fakeExtractor{}, nil)

	out, err := is.IngestObject(context.Background(), "raw", "notes.txt", 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" || out.ChunkCount != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	chunks := st.finalised[out.DocID]
	if len(chunks) != 1 || chunks[0].Text != "hello\nworld" {
		t.Fatalf("chunks = %+v", chunks)
	}
	if st.processed[out.DocID] != nil {
		t.Error("txt ingest must not set a processed artefact")
	}
	if len(gw.uploaded) != 0 {
		t.Error("txt ingest must not upload anything")
	}
}

func TestIngestObjectPDFUploadsArtefact(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{"abc.pdf": []byte("%PDF")}, generation: 17, meta: "Annual Report.pdf"}
	ex := &fakeExtractor{pages: []Page{{Page: 1, Body: "quarterly results were strong"}}}
	is := newTestIngest(t, st, gw, ex, nil)

	out, err := is.IngestObject(context.Background(), "raw", "abc.pdf", 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" {
		t.Fatalf("outcome = %+v", out)
	}
	if st.filenames[out.DocID] != "Annual Report.pdf" {
		t.Errorf("filename = %q, want metadata name", st.filenames[out.DocID])
	}
	uri := st.processed[out.DocID]
	if uri == nil || *uri != "gs://processed/"+out.DocID.String()+".json" {
		t.Errorf("processed uri = %v", uri)
	}
	if _, ok := gw.uploaded[out.DocID.String()+".json"]; !ok {
		t.Error("page artefact not uploaded")
	}
}

func TestIngestObjectSkipsExistingClaim(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{"abc.pdf": []byte("%PDF")}, generation: 17}
	is := newTestIngest(t, st, gw, &fakeExtractor{pages: []Page{{Page: 1, Body: "text"}}}, nil)

	first, err := is.IngestObject(context.Background(), "raw", "abc.pdf", 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := is.IngestObject(context.Background(), "raw", "abc.pdf", 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != "skipped" || second.DocID != first.DocID {
		t.Fatalf("second ingest = %+v, first doc %s", second, first.DocID)
	}
}

func TestIngestClaimedFetchesPinnedGeneration(t *testing.T) {
	// The object is overwritten between claim time and worker pickup: the
	// pipeline must still read the claimed generation's bytes, not the
	// current ones.
	st := newFakeStore()
	gw := &fakeGateway{
		files:      map[string][]byte{"notes.txt": []byte("generation eighteen bytes")},
		byGen:      map[int64][]byte{17: []byte("generation seventeen bytes")},
		generation: 18,
	}
	is := newTestIngest(t, st, gw, &fakeExtractor{}, nil)

	docID := uuid.New()
	out, err := is.IngestClaimed(context.Background(), docID, "gs://raw/notes.txt", "notes.txt", 17)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" {
		t.Fatalf("outcome = %+v", out)
	}
	if gw.fetchedGen != 17 {
		t.Fatalf("fetched generation %d, want the claimed 17", gw.fetchedGen)
	}
	chunks := st.finalised[docID]
	if len(chunks) != 1 || chunks[0].Text != "generation seventeen bytes" {
		t.Fatalf("chunks = %+v, want the generation-17 content", chunks)
	}
}

func TestIngestEmptyBodyFinalisesReady(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{"empty.pdf": []byte("%PDF")}, generation: 3}
	is := newTestIngest(t, st, gw, &fakeExtractor{pages: nil}, nil)

	out, err := is.IngestObject(context.Background(), "raw", "empty.pdf", 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" || out.ChunkCount != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if chunks, ok := st.finalised[out.DocID]; !ok || len(chunks) != 0 {
		t.Fatalf("expected finalised with zero chunks, got %v (ok=%v)", chunks, ok)
	}
}

func TestIngestFailureMarksDocument(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{"deck.pptx": []byte("zip")}, generation: 1}
	is := newTestIngest(t, st, gw, &fakeExtractor{}, nil)

	_, err := is.IngestObject(context.Background(), "raw", "deck.pptx", 0)
	if err == nil {
		t.Fatal("expected error")
	}

	var docID uuid.UUID
	for _, c := range st.claims {
		docID = c.DocID
	}
	msg, ok := st.failed[docID]
	if !ok {
		t.Fatal("document not marked failed")
	}
	if !strings.HasPrefix(msg, "Unsupported: ") {
		t.Errorf("error label = %q", msg)
	}
}

func TestIngestURL(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{}}
	fetcher := &fakePageFetcher{page: &crawler.PageContent{
		URL:     "https://example.com/docs",
		Title:   "Example Docs",
		Content: "documentation body text",
	}}
	is := newTestIngest(t, st, gw, &fakeExtractor{}, fetcher)

	out, err := is.IngestURL(context.Background(), "https://example.com/docs")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" || out.ChunkCount != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if st.filenames[out.DocID] != "Example Docs" {
		t.Errorf("filename = %q", st.filenames[out.DocID])
	}

	again, err := is.IngestURL(context.Background(), "https://example.com/docs")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != "skipped" {
		t.Errorf("resubmitted URL should skip, got %+v", again)
	}
}

func TestIngestTextIdempotentByContent(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{files: map[string][]byte{}}
	is := newTestIngest(t, st, gw, &fakeExtractor{}, nil)

	out, err := is.IngestText(context.Background(), "snippet", "some pasted content")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" {
		t.Fatalf("outcome = %+v", out)
	}

	again, err := is.IngestText(context.Background(), "other title", "some pasted content")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != "skipped" || again.DocID != out.DocID {
		t.Errorf("identical text should skip with same doc, got %+v", again)
	}

	if _, err := is.IngestText(context.Background(), "t", "   "); faults.KindOf(err) != faults.Validation {
		t.Errorf("blank text should be a validation error, got %v", err)
	}
}
