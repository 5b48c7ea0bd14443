package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"docatlas/internal/faults"
	"docatlas/models"
)

const snippetLen = 120

// Docs3D returns every reduced chunk point joined with its document, for the
// whole-corpus 3D view.
func (s *Store) Docs3D(ctx context.Context) ([]models.SpatialChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.chunk_id, p.x, p.y, p.z, c.doc_id, d.filename, c.chunk_index, left(c.text, $1)
		 FROM chunks_3d p
		 JOIN chunks c ON c.id = p.chunk_id
		 JOIN documents d ON d.id = c.doc_id
		 ORDER BY p.chunk_id`, snippetLen)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.Docs3D", err)
	}
	defer rows.Close()

	points := []models.SpatialChunk{}
	for rows.Next() {
		var p models.SpatialChunk
		if err := rows.Scan(&p.ChunkID, &p.X, &p.Y, &p.Z, &p.DocID, &p.Filename, &p.Index, &p.Snippet); err != nil {
			return nil, faults.Wrap(faults.Upstream, "store.Docs3D", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.Docs3D", err)
	}
	return points, nil
}

// Chunks3D returns the reduced points of one document.
func (s *Store) Chunks3D(ctx context.Context, docID uuid.UUID) ([]models.SpatialChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.chunk_id, p.x, p.y, p.z, c.doc_id, d.filename, c.chunk_index, left(c.text, $2)
		 FROM chunks_3d p
		 JOIN chunks c ON c.id = p.chunk_id
		 JOIN documents d ON d.id = c.doc_id
		 WHERE c.doc_id = $1
		 ORDER BY c.chunk_index`, docID, snippetLen)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.Chunks3D", err)
	}
	defer rows.Close()

	points := []models.SpatialChunk{}
	for rows.Next() {
		var p models.SpatialChunk
		if err := rows.Scan(&p.ChunkID, &p.X, &p.Y, &p.Z, &p.DocID, &p.Filename, &p.Index, &p.Snippet); err != nil {
			return nil, faults.Wrap(faults.Upstream, "store.Chunks3D", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.Chunks3D", err)
	}
	return points, nil
}

// AllEmbeddings streams every (chunk_id, vector) pair ordered by chunk id.
// The reducer depends on this ordering for determinism.
func (s *Store) AllEmbeddings(ctx context.Context) ([]int64, [][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, nil, faults.Wrap(faults.Upstream, "store.AllEmbeddings", err)
	}
	defer rows.Close()

	var ids []int64
	var vectors [][]float32
	for rows.Next() {
		var id int64
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, nil, faults.Wrap(faults.Upstream, "store.AllEmbeddings", err)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, nil, faults.Wrap(faults.Upstream, "store.AllEmbeddings", err)
	}
	return ids, vectors, nil
}

// Replace3D swaps the entire 3D map in one transaction so readers see either
// the old layout or the new one, never a partial mix.
func (s *Store) Replace3D(ctx context.Context, points []models.ChunkPoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return faults.Wrap(faults.Upstream, "store.Replace3D", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks_3d`); err != nil {
		return faults.Wrap(faults.Upstream, "store.Replace3D", err)
	}
	for _, p := range points {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks_3d (chunk_id, x, y, z) VALUES ($1, $2, $3, $4)`,
			p.ChunkID, p.X, p.Y, p.Z)
		if err != nil {
			return faults.Wrap(faults.Upstream, "store.Replace3D", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return faults.Wrap(faults.Upstream, "store.Replace3D", err)
	}
	return nil
}
