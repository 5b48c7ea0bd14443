package services

import (
	"sort"

	"docatlas/models"
)

// FuseRanks merges ranked candidate lists with reciprocal rank fusion. Each
// chunk scores Σ 1/(k + rank) over the lists it appears in, rank being its
// 1-based position. Chunks absent from every list are absent from the
// output. Any number of lists is accepted; hybrid retrieval passes keyword
// and vector results, and operators may add an LLM rerank as a third list.
func FuseRanks(k int, lists ...[]models.ScoredChunk) []models.ScoredChunk {
	type entry struct {
		chunk models.ScoredChunk
		score float64
		seen  int
	}
	byID := make(map[int64]*entry)
	order := make([]int64, 0)

	for _, list := range lists {
		for rank, c := range list {
			e, ok := byID[c.ChunkID]
			if !ok {
				e = &entry{chunk: c}
				byID[c.ChunkID] = e
				order = append(order, c.ChunkID)
			}
			e.score += 1.0 / float64(k+rank+1)
			e.seen++
		}
	}

	fused := make([]models.ScoredChunk, 0, len(order))
	for _, id := range order {
		e := byID[id]
		e.chunk.Score = e.score
		fused = append(fused, e.chunk)
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	return fused
}
