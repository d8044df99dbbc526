// Package retrieval turns ranked index searches into the context string
// handed to the completion service.
package retrieval

import "strings"

// Delimiter separates chunk texts inside an assembled context string.
const Delimiter = "\n\n---\n\n"

// Retriever runs queries against the current index generation and
// assembles a context string from the chunks that clear the minimum
// score. It holds no index state of its own.
type Retriever struct {
	handle   *Handle
	topK     int
	minScore float64
}

// NewRetriever creates a Retriever reading from handle. topK bounds how
// many ranked results are considered and minScore is the relevance
// threshold; both come from configuration.
func NewRetriever(handle *Handle, topK int, minScore float64) *Retriever {
	return &Retriever{handle: handle, topK: topK, minScore: minScore}
}

// Search returns up to topK ranked chunks for the query. A nil result
// with nil error means no generation has been published yet.
func (r *Retriever) Search(query string) ([]ScoredChunk, error) {
	gen := r.handle.Current()
	if gen == nil {
		return nil, nil
	}
	results, err := gen.Search(query)
	if err != nil {
		return nil, err
	}
	if len(results) > r.topK {
		results = results[:r.topK]
	}
	return results, nil
}

// RetrieveContext searches for the query and concatenates the texts of
// the top-K chunks scoring at or above the threshold, descending by
// score. ok is false when nothing relevant was found; that is a designed
// fallback, not an error.
func (r *Retriever) RetrieveContext(query string) (context string, ok bool, err error) {
	results, err := r.Search(query)
	if err != nil {
		return "", false, err
	}

	var texts []string
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		texts = append(texts, res.Chunk.Text)
	}
	if len(texts) == 0 {
		return "", false, nil
	}
	return strings.Join(texts, Delimiter), true, nil
}
