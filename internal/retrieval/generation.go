package retrieval

import (
	"fmt"
	"sync/atomic"

	"github.com/verasoft/docchat/internal/chunker"
	"github.com/verasoft/docchat/internal/index"
)

// Generation is one immutable, consolidated index generation together
// with the chunks it was built from. Writers build a complete Generation
// off to the side and publish it through a Handle; readers hold a
// reference to a single generation for the duration of a search and are
// never exposed to a half-built index.
type Generation struct {
	ix     *index.Index
	chunks []chunker.Chunk
	byID   map[string]chunker.Chunk
}

// NewGeneration wraps a consolidated index and its chunk set.
func NewGeneration(ix *index.Index, chunks []chunker.Chunk) *Generation {
	byID := make(map[string]chunker.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return &Generation{ix: ix, chunks: chunks, byID: byID}
}

// ScoredChunk is a retrieved chunk with its BM25 score.
type ScoredChunk struct {
	Chunk chunker.Chunk
	Score float64
}

// Search runs the query against this generation's index and resolves
// hits back to chunk texts, preserving ranking order.
func (g *Generation) Search(query string) ([]ScoredChunk, error) {
	hits, err := g.ix.Search(query)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		c, ok := g.byID[h.ID]
		if !ok {
			continue
		}
		results = append(results, ScoredChunk{Chunk: c, Score: h.Score})
	}
	return results, nil
}

// Chunks returns the chunk set of this generation in insertion order.
func (g *Generation) Chunks() []chunker.Chunk {
	return g.chunks
}

// Handle is a versioned pointer to the current index generation. Publish
// atomically swaps in a new generation; Current returns the latest one
// (nil before anything has been indexed).
type Handle struct {
	p atomic.Pointer[Generation]
}

// NewHandle returns an empty handle.
func NewHandle() *Handle {
	return &Handle{}
}

// Publish makes gen the generation seen by subsequent searches.
func (h *Handle) Publish(gen *Generation) {
	h.p.Store(gen)
}

// Current returns the published generation, or nil if none exists yet.
func (h *Handle) Current() *Generation {
	return h.p.Load()
}
