package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docatlas/internal/crawler"
	"docatlas/internal/faults"
	"docatlas/internal/gcs"
	"docatlas/internal/logger"
	"docatlas/internal/store"
	"docatlas/models"
)

// DocumentStore is the slice of the persistence layer the orchestrator
// touches. A connection is borrowed per call, never held across the model
// round trips in between.
type DocumentStore interface {
	ClaimDocument(ctx context.Context, filename, originalGCS string, generation int64) (*store.ClaimResult, error)
	FinaliseSuccess(ctx context.Context, docID uuid.UUID, filename string, processedGCS *string, chunks []models.Chunk) error
	MarkFailed(ctx context.Context, docID uuid.UUID, message string) error
}

// ObjectGateway is the object-store surface used during ingest.
type ObjectGateway interface {
	Stat(ctx context.Context, bucket, name string) (int64, string, error)
	Fetch(ctx context.Context, bucket, name string, generation int64, destDir string) (*gcs.FetchResult, error)
	Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error)
	NewWorkDir(docID string) (string, func(), error)
}

// TextEmbedder turns ordered texts into ordered vectors.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// PDFExtractor produces page structure and joined text from a PDF path.
type PDFExtractor interface {
	ExtractPDF(ctx context.Context, path string) ([]Page, string, error)
}

// URLFetcher retrieves one web page's main content.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*crawler.PageContent, error)
}

// IngestService drives a document from claimed bytes to Ready chunks. One
// document's pipeline is sequential; concurrency happens across documents in
// the worker pool.
type IngestService struct {
	store           DocumentStore
	gateway         ObjectGateway
	extractor       PDFExtractor
	chunker         *ChunkerService
	embedder        TextEmbedder
	fetcher         URLFetcher
	processedBucket string
}

func NewIngestService(st DocumentStore, gw ObjectGateway, ex PDFExtractor, ch *ChunkerService, em TextEmbedder, f URLFetcher, processedBucket string) *IngestService {
	return &IngestService{
		store:           st,
		gateway:         gw,
		extractor:       ex,
		chunker:         ch,
		embedder:        em,
		fetcher:         f,
		processedBucket: processedBucket,
	}
}

// IngestOutcome reports how an ingest request resolved. Skipped means the
// claim found an existing row for the same object generation.
type IngestOutcome struct {
	DocID      uuid.UUID `json:"doc_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	ChunkCount int       `json:"chunk_count,omitempty"`
}

// IngestObject is the bus-driven entry point: claim the (object, generation)
// pair and, if the claim is fresh, run the pipeline. A generation of 0 means
// "current": the gateway resolves and pins it before claiming.
func (is *IngestService) IngestObject(ctx context.Context, bucket, name string, generation int64) (*IngestOutcome, error) {
	originalName := ""
	if generation == 0 {
		g, meta, err := is.gateway.Stat(ctx, bucket, name)
		if err != nil {
			return nil, err
		}
		generation = g
		originalName = meta
	}
	if originalName == "" {
		originalName = filepath.Base(name)
	}

	claim, err := is.store.ClaimDocument(ctx, originalName, gcs.URI(bucket, name), generation)
	if err != nil {
		return nil, err
	}
	if !claim.Fresh {
		logger.Info("Ingest skipped, object already claimed",
			"object", gcs.URI(bucket, name), "generation", generation, "status", claim.Status)
		return &IngestOutcome{DocID: claim.DocID, Status: "skipped", Reason: string(claim.Status)}, nil
	}

	return is.runObjectPipeline(ctx, claim.DocID, bucket, name, generation, originalName)
}

// IngestClaimed runs the pipeline for a document the HTTP surface already
// claimed synchronously (so the caller could return the doc id). generation
// is the one pinned at claim time: the fetch must read those exact bytes
// even if the object has been overwritten since.
func (is *IngestService) IngestClaimed(ctx context.Context, docID uuid.UUID, gcsURI string, filename string, generation int64) (*IngestOutcome, error) {
	bucket, name, err := gcs.ParseURI(gcsURI)
	if err != nil {
		return nil, is.failWith(ctx, docID, err)
	}
	return is.runObjectPipeline(ctx, docID, bucket, name, generation, filename)
}

func (is *IngestService) runObjectPipeline(ctx context.Context, docID uuid.UUID, bucket, name string, generation int64, filename string) (*IngestOutcome, error) {
	workDir, cleanup, err := is.gateway.NewWorkDir(docID.String())
	if err != nil {
		return nil, is.failWith(ctx, docID, err)
	}
	defer cleanup()

	fetched, err := is.gateway.Fetch(ctx, bucket, name, generation, workDir)
	if err != nil {
		return nil, is.failWith(ctx, docID, err)
	}
	if filename == "" {
		if fetched.OriginalFilename != "" {
			filename = fetched.OriginalFilename
		} else {
			filename = filepath.Base(name)
		}
	}

	// The object suffix decides the format; metadata content types lie too
	// often to be trusted.
	norm, err := Normalize(ctx, fetched.LocalPath)
	if err != nil {
		return nil, is.failWith(ctx, docID, err)
	}

	var (
		text  string
		pages []Page
	)
	if norm.PlainText {
		raw, err := os.ReadFile(norm.Path)
		if err != nil {
			return nil, is.failWith(ctx, docID, faults.Wrap(faults.Fatal, "services.Ingest", err))
		}
		text = DecodeText(raw)
	} else {
		pages, text, err = is.extractor.ExtractPDF(ctx, norm.Path)
		if err != nil {
			return nil, is.failWith(ctx, docID, err)
		}
	}

	return is.finishIngest(ctx, docID, filename, text, !norm.PlainText && len(pages) > 0, pages)
}

// finishIngest is the shared tail of every pipeline: chunk, embed, persist.
// uploadPages controls whether a processed page artefact is written (PDF
// ingests only).
func (is *IngestService) finishIngest(ctx context.Context, docID uuid.UUID, filename, text string, uploadPages bool, pages []Page) (*IngestOutcome, error) {
	plainText := !uploadPages

	segments, err := is.chunker.Chunk(filename, text, plainText)
	if err != nil {
		return nil, is.failWith(ctx, docID, err)
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	vectors, err := is.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, is.failWith(ctx, docID, err)
	}

	chunks := make([]models.Chunk, len(segments))
	for i := range segments {
		chunks[i] = models.Chunk{DocID: docID, Index: i, Text: segments[i].Text, Embedding: vectors[i]}
	}

	var processedGCS *string
	if uploadPages {
		artefact, err := json.Marshal(pages)
		if err != nil {
			return nil, is.failWith(ctx, docID, faults.Wrap(faults.Fatal, "services.Ingest", err))
		}
		uri, err := is.gateway.Upload(ctx, is.processedBucket, docID.String()+".json", artefact, "application/json")
		if err != nil {
			return nil, is.failWith(ctx, docID, err)
		}
		processedGCS = &uri
	}

	if err := is.store.FinaliseSuccess(ctx, docID, filename, processedGCS, chunks); err != nil {
		return nil, is.failWith(ctx, docID, err)
	}

	logger.Info("Document ingested", "doc_id", docID, "filename", filename, "chunks", len(chunks))
	return &IngestOutcome{DocID: docID, Status: "ok", ChunkCount: len(chunks)}, nil
}

// IngestURL fetches one page and ingests its text. The normalised URL is the
// claim identity, so re-submitting the same URL skips.
func (is *IngestService) IngestURL(ctx context.Context, rawURL string) (*IngestOutcome, error) {
	page, err := is.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	filename := page.Title
	if filename == "" {
		filename = page.URL
	}
	claim, err := is.store.ClaimDocument(ctx, filename, page.URL, 0)
	if err != nil {
		return nil, err
	}
	if !claim.Fresh {
		return &IngestOutcome{DocID: claim.DocID, Status: "skipped", Reason: string(claim.Status)}, nil
	}

	return is.finishIngest(ctx, claim.DocID, filename, page.Content, false, nil)
}

// IngestText ingests pasted text directly. The content hash is the claim
// identity, making resubmission of identical text idempotent.
func (is *IngestService) IngestText(ctx context.Context, title, text string) (*IngestOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, faults.New(faults.Validation, "services.IngestText", "empty text body")
	}
	if title == "" {
		title = "pasted-text"
	}

	sum := sha256.Sum256([]byte(text))
	identity := "text://" + hex.EncodeToString(sum[:])

	claim, err := is.store.ClaimDocument(ctx, title, identity, 0)
	if err != nil {
		return nil, err
	}
	if !claim.Fresh {
		return &IngestOutcome{DocID: claim.DocID, Status: "skipped", Reason: string(claim.Status)}, nil
	}

	return is.finishIngest(ctx, claim.DocID, title, text, false, nil)
}

// failWith marks the document Failed with the error's stable label and
// passes the error on. Context cancellation records "cancelled" so the row
// never sits in Processing forever; a best-effort background write is used
// because the request context is already dead.
func (is *IngestService) failWith(ctx context.Context, docID uuid.UUID, err error) error {
	label := faults.Label(err)
	markCtx := ctx
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		label = "Transient: cancelled"
		markCtx = context.WithoutCancel(ctx)
	}
	if markErr := is.store.MarkFailed(markCtx, docID, label); markErr != nil {
		logger.Error("Failed to mark document failed", "doc_id", docID, "error", markErr)
	}
	logger.Error("Ingest failed", "doc_id", docID, "error", err)
	return err
}
