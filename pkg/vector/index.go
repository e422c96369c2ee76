// Package vector provides the in-memory passage index and its
// similarity search.
package vector

import (
	"context"
	"math"
	"sort"

	"github.com/papercomputeco/folio/pkg/embeddings"
)

// Entry is one passage/vector pair held by an Index.
type Entry struct {
	Passage string
	Vector  []float32
}

// Result is a ranked search hit.
type Result struct {
	Passage string
	Score   float64
}

// Index is an append-only collection of passage/vector pairs searched by
// brute-force cosine similarity. Per-session corpora are bounded, so a
// linear scan is the contract; entries keep insertion order, which also
// breaks exact score ties.
//
// An Index is built single-writer during document processing and is
// read-only afterwards; concurrent searches need no coordination.
type Index struct {
	entries []Entry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Add appends one passage/vector pair. Appending is the only mutation;
// entries are never updated or removed individually.
func (ix *Index) Add(passage string, vec []float32) {
	ix.entries = append(ix.entries, Entry{Passage: passage, Vector: vec})
}

// Len returns the number of stored pairs.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Passages returns the stored passages in insertion order.
func (ix *Index) Passages() []string {
	passages := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		passages[i] = e.Passage
	}
	return passages
}

// Entries returns the stored pairs in insertion order. The returned
// slice shares the index's backing arrays and must not be mutated.
func (ix *Index) Entries() []Entry {
	return ix.entries
}

// Search ranks every stored vector against the query by cosine
// similarity and returns the top k, descending. Exact ties rank by
// insertion order. k larger than the index returns everything; an empty
// index returns an empty result, never an error.
func (ix *Index) Search(query []float32, k int) []Result {
	if k <= 0 || len(ix.entries) == 0 {
		return []Result{}
	}

	results := make([]Result, len(ix.entries))
	for i, e := range ix.entries {
		results[i] = Result{
			Passage: e.Passage,
			Score:   CosineSimilarity(query, e.Vector),
		}
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// SearchByText embeds the query text with the given embedder, then
// searches.
func (ix *Index) SearchByText(ctx context.Context, embedder embeddings.Embedder, text string, k int) ([]Result, error) {
	query, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return ix.Search(query, k), nil
}

// CosineSimilarity computes (a·b)/(‖a‖·‖b‖). A zero-norm vector on
// either side scores 0 rather than dividing by zero. Vectors of unequal
// length are compared over their shared prefix.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
