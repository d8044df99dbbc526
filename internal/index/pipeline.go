package index

import "strings"

// Stage transforms a token sequence. Stages are pure functions composed
// in a fixed order at index construction time; the same pipeline must be
// applied to documents and queries for scores to be comparable.
type Stage func(tokens []string) []string

// Pipeline is an ordered sequence of token stages applied after
// whitespace tokenization.
type Pipeline []Stage

// Run tokenizes text on whitespace and applies every stage in order.
func (p Pipeline) Run(text string) []string {
	tokens := strings.Fields(text)
	for _, stage := range p {
		tokens = stage(tokens)
	}
	return tokens
}

// stopwords is the fixed set of function words dropped during indexing.
var stopwords = map[string]struct{}{
	"a": {}, "e": {}, "o": {}, "de": {}, "do": {}, "da": {},
}

// Lowercase maps every token to lower case.
func Lowercase(tokens []string) []string {
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return tokens
}

// RemoveStopwords drops tokens found in the fixed stopword set.
func RemoveStopwords(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if _, skip := stopwords[t]; skip {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Stem is the identity stemmer. Kept as an explicit stage so a real
// stemmer can be swapped in without changing pipeline composition.
func Stem(tokens []string) []string { return tokens }

// PropagateNegation is the identity negation stage.
func PropagateNegation(tokens []string) []string { return tokens }

// DefaultPipeline returns the standard stage order: lowercase, stopword
// removal, stemming, negation propagation.
func DefaultPipeline() Pipeline {
	return Pipeline{Lowercase, RemoveStopwords, Stem, PropagateNegation}
}
