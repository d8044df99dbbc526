// Package chunker splits extracted document text into overlapping
// fixed-size word windows, the unit of retrieval for the ranking index.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadWindow is returned when the overlap is not smaller than the
// window: the slide step would be non-positive and chunking would never
// terminate.
var ErrBadWindow = errors.New("chunk overlap must be smaller than window size")

// Chunk is one window of a document's text.
type Chunk struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	DocID   string `json:"docId,omitempty"`
	Ordinal int    `json:"ordinal"`
}

// Split normalizes whitespace, splits text into words and slides a
// window of windowWords advancing by windowWords-overlapWords each
// step. A text shorter than one window yields a single chunk; a
// trailing remainder shorter than a window still becomes a final chunk.
func Split(text string, windowWords, overlapWords int) ([]Chunk, error) {
	if windowWords <= 0 {
		return nil, fmt.Errorf("%w: window %d", ErrBadWindow, windowWords)
	}
	if overlapWords < 0 || overlapWords >= windowWords {
		return nil, fmt.Errorf("%w: window %d, overlap %d", ErrBadWindow, windowWords, overlapWords)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := windowWords - overlapWords
	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := i + windowWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			ID:      fmt.Sprintf("c_%d", len(chunks)),
			Text:    strings.Join(words[i:end], " "),
			Ordinal: len(chunks),
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
