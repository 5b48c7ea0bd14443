// Package store is the persistence layer over Postgres with the pgvector
// extension. All operations borrow a pool connection for the duration of a
// single call; nothing holds a connection across a model or object-store
// round trip.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"docatlas/internal/faults"
	"docatlas/models"
)

type Store struct {
	pool *pgxpool.Pool
	dim  int
}

func New(pool *pgxpool.Pool, vectorDim int) *Store {
	return &Store{pool: pool, dim: vectorDim}
}

// EnsureSchema creates the extension and tables. Safe to run on every
// startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			original_gcs TEXT NOT NULL,
			gcs_generation BIGINT NOT NULL DEFAULT 0,
			processed_gcs TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (original_gcs, gcs_generation)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			doc_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			UNIQUE (doc_id, chunk_index)
		)`, s.dim),
		`CREATE TABLE IF NOT EXISTS chunks_3d (
			chunk_id BIGINT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			z DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processing_tasks (
			task_id UUID PRIMARY KEY,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			input_data JSONB NOT NULL,
			result_data JSONB,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id, chunk_index)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return faults.Wrap(faults.Fatal, "store.EnsureSchema", err)
		}
	}
	return nil
}

// ClaimResult reports the outcome of a claim attempt. Fresh is true for
// exactly one caller per (original_gcs, generation); everyone else observes
// the existing row.
type ClaimResult struct {
	DocID  uuid.UUID
	Status models.DocumentStatus
	Fresh  bool
}

// ClaimDocument atomically registers intent to ingest one object generation.
// The unique constraint on (original_gcs, gcs_generation) arbitrates races:
// the INSERT either lands or affects zero rows, and the loser re-reads the
// winner's row.
func (s *Store) ClaimDocument(ctx context.Context, filename, originalGCS string, generation int64) (*ClaimResult, error) {
	docID := uuid.New()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, filename, original_gcs, gcs_generation, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (original_gcs, gcs_generation) DO NOTHING`,
		docID, filename, originalGCS, generation, models.StatusProcessing)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ClaimDocument", err)
	}
	if tag.RowsAffected() == 1 {
		return &ClaimResult{DocID: docID, Status: models.StatusProcessing, Fresh: true}, nil
	}

	var existing ClaimResult
	err = s.pool.QueryRow(ctx,
		`SELECT id, status FROM documents WHERE original_gcs = $1 AND gcs_generation = $2`,
		originalGCS, generation).Scan(&existing.DocID, &existing.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		// The winner's transaction vanished between our INSERT and this read;
		// only a concurrent delete does that. Treat as a race and let the
		// caller retry.
		return nil, faults.New(faults.Race, "store.ClaimDocument", "claimed row disappeared")
	}
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ClaimDocument", err)
	}
	return &existing, nil
}

// FinaliseSuccess flips the document to Ready and replaces its chunks in one
// transaction. Chunk ordinals are the slice indexes.
func (s *Store) FinaliseSuccess(ctx context.Context, docID uuid.UUID, filename string, processedGCS *string, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return faults.Wrap(faults.Upstream, "store.FinaliseSuccess", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE documents SET status = $1, filename = $2, processed_gcs = $3, error_message = NULL WHERE id = $4`,
		models.StatusReady, filename, processedGCS, docID)
	if err != nil {
		return faults.Wrap(faults.Upstream, "store.FinaliseSuccess", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID); err != nil {
		return faults.Wrap(faults.Upstream, "store.FinaliseSuccess", err)
	}

	for i, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (doc_id, chunk_index, text, embedding) VALUES ($1, $2, $3, $4)`,
			docID, i, c.Text, pgvector.NewVector(c.Embedding))
		if err != nil {
			return faults.Wrap(faults.Upstream, "store.FinaliseSuccess", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return faults.Wrap(faults.Upstream, "store.FinaliseSuccess", err)
	}
	return nil
}

// MarkFailed records a terminal ingest failure on the document.
func (s *Store) MarkFailed(ctx context.Context, docID uuid.UUID, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2 WHERE id = $3`,
		models.StatusFailed, message, docID)
	if err != nil {
		return faults.Wrap(faults.Upstream, "store.MarkFailed", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docID uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, original_gcs, gcs_generation, processed_gcs, status, error_message, created_at
		 FROM documents WHERE id = $1`, docID).
		Scan(&d.ID, &d.Filename, &d.OriginalGCS, &d.GCSGeneration, &d.ProcessedGCS, &d.Status, &d.ErrorMessage, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.Newf(faults.NotFound, "store.GetDocument", "document %s not found", docID)
	}
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.GetDocument", err)
	}
	return &d, nil
}

// ListDocuments returns summaries with chunk counts, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.filename, d.original_gcs, d.gcs_generation, d.processed_gcs,
		        d.status, d.error_message, d.created_at, count(c.id)
		 FROM documents d
		 LEFT JOIN chunks c ON c.doc_id = d.id
		 GROUP BY d.id
		 ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ListDocuments", err)
	}
	defer rows.Close()

	summaries := []models.DocumentSummary{}
	for rows.Next() {
		var sm models.DocumentSummary
		if err := rows.Scan(&sm.ID, &sm.Filename, &sm.OriginalGCS, &sm.GCSGeneration,
			&sm.ProcessedGCS, &sm.Status, &sm.ErrorMessage, &sm.CreatedAt, &sm.ChunkCount); err != nil {
			return nil, faults.Wrap(faults.Upstream, "store.ListDocuments", err)
		}
		summaries = append(summaries, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ListDocuments", err)
	}
	return summaries, nil
}

// DeleteDocument removes the document; chunks and 3D points go with it via
// ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return faults.Wrap(faults.Upstream, "store.DeleteDocument", err)
	}
	if tag.RowsAffected() == 0 {
		return faults.Newf(faults.NotFound, "store.DeleteDocument", "document %s not found", docID)
	}
	return nil
}
