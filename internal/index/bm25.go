package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientCorpus is returned by Consolidate when fewer than two
// non-empty documents have been added. The index stays in its building
// state so more documents can still be added.
var ErrInsufficientCorpus = errors.New("insufficient corpus: at least 2 non-empty documents required")

// ErrNotConsolidated is returned by Search and Export before Consolidate
// has succeeded.
var ErrNotConsolidated = errors.New("index not consolidated")

// ErrConsolidated is returned by AddDoc once the index has been frozen.
var ErrConsolidated = errors.New("index already consolidated")

// Params holds the BM25 tuning constants. K1 controls term-frequency
// saturation, B controls document-length normalization and K controls
// query-term-frequency saturation.
type Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
	K  float64 `json:"k"`
}

// DefaultParams returns the standard tuning: k1=1.2, b=0.75, k=60.
func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75, K: 60}
}

// Hit is one search result: a document id and its BM25 score.
type Hit struct {
	ID    string
	Score float64
}

type state int

const (
	stateEmpty state = iota
	stateBuilding
	stateConsolidated
)

type posting struct {
	Doc  int `json:"d"` // index into docs, insertion order
	Freq int `json:"f"`
}

type docEntry struct {
	ID  string `json:"id"`
	Len int    `json:"len"`
}

// Index is an in-memory BM25 inverted index. It moves through three
// states: empty, building (documents may be added) and consolidated
// (corpus statistics frozen, search allowed). A consolidated index is
// immutable; re-indexing means building a fresh Index and swapping it in.
type Index struct {
	params   Params
	pipeline Pipeline

	docs     []docEntry
	docIdx   map[string]int
	postings map[string][]posting

	avgdl float64
	idf   map[string]float64
	state state
}

// New creates an empty index with the given params and pipeline stages.
// Zero params and no stages select the defaults.
func New(params Params, stages ...Stage) *Index {
	if params == (Params{}) {
		params = DefaultParams()
	}
	pipeline := Pipeline(stages)
	if len(pipeline) == 0 {
		pipeline = DefaultPipeline()
	}
	return &Index{
		params:   params,
		pipeline: pipeline,
		docIdx:   make(map[string]int),
		postings: make(map[string][]posting),
	}
}

// AddDoc indexes one document under id. Documents whose text reduces to
// zero tokens are recorded but never match a query. AddDoc fails once
// the index is consolidated.
func (ix *Index) AddDoc(id, text string) error {
	if ix.state == stateConsolidated {
		return ErrConsolidated
	}
	if _, dup := ix.docIdx[id]; dup {
		return fmt.Errorf("duplicate document id %q", id)
	}

	tokens := ix.pipeline.Run(text)
	doc := len(ix.docs)
	ix.docs = append(ix.docs, docEntry{ID: id, Len: len(tokens)})
	ix.docIdx[id] = doc

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	for term, freq := range tf {
		ix.postings[term] = append(ix.postings[term], posting{Doc: doc, Freq: freq})
	}

	ix.state = stateBuilding
	return nil
}

// Consolidate freezes corpus statistics (IDF, average document length)
// so Search becomes valid. It is idempotent; calling it on an already
// consolidated index is a no-op. Fewer than two non-empty documents is
// reported as ErrInsufficientCorpus and leaves the index unchanged.
func (ix *Index) Consolidate() error {
	if ix.state == stateConsolidated {
		return nil
	}

	nonEmpty := 0
	total := 0
	for _, d := range ix.docs {
		total += d.Len
		if d.Len > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return ErrInsufficientCorpus
	}

	ix.avgdl = float64(total) / float64(len(ix.docs))
	ix.computeIDF()
	ix.state = stateConsolidated
	return nil
}

// computeIDF computes the smoothed log IDF per term over the full corpus.
func (ix *Index) computeIDF() {
	n := float64(len(ix.docs))
	ix.idf = make(map[string]float64, len(ix.postings))
	for term, plist := range ix.postings {
		df := float64(len(plist))
		ix.idf[term] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}
}

// Search scores every document containing at least one query term and
// returns hits in descending score order. Ties keep document insertion
// order. Searching a non-consolidated index fails with ErrNotConsolidated;
// the caller decides when consolidation happens, search never triggers it.
func (ix *Index) Search(query string) ([]Hit, error) {
	if ix.state != stateConsolidated {
		return nil, ErrNotConsolidated
	}

	qtf := make(map[string]int)
	for _, t := range ix.pipeline.Run(query) {
		qtf[t]++
	}

	scores := make(map[int]float64)
	for term, freq := range qtf {
		plist, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := ix.idf[term]
		qf := float64(freq)
		qComp := qf * (ix.params.K + 1) / (qf + ix.params.K)
		for _, p := range plist {
			f := float64(p.Freq)
			dl := float64(ix.docs[p.Doc].Len)
			norm := ix.params.K1 * (1 - ix.params.B + ix.params.B*dl/ix.avgdl)
			scores[p.Doc] += idf * (f * (ix.params.K1 + 1) / (f + norm)) * qComp
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, d := range ix.docs {
		if s, ok := scores[doc]; ok {
			hits = append(hits, Hit{ID: d.ID, Score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// DocCount returns the number of indexed documents.
func (ix *Index) DocCount() int {
	return len(ix.docs)
}

// Consolidated reports whether corpus statistics have been frozen.
func (ix *Index) Consolidated() bool {
	return ix.state == stateConsolidated
}

const snapshotVersion = 1

type snapshot struct {
	Version  int                  `json:"version"`
	Params   Params               `json:"params"`
	Docs     []docEntry           `json:"docs"`
	Postings map[string][]posting `json:"postings"`
}

// Export serializes a consolidated index. The payload, imported into a
// fresh index, reproduces identical search rankings.
func (ix *Index) Export() ([]byte, error) {
	if ix.state != stateConsolidated {
		return nil, ErrNotConsolidated
	}
	return json.Marshal(snapshot{
		Version:  snapshotVersion,
		Params:   ix.params,
		Docs:     ix.docs,
		Postings: ix.postings,
	})
}

// Import replaces the index contents with a previously exported
// snapshot. Derived statistics are recomputed; the imported index is
// consolidated and immediately searchable.
func (ix *Index) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding index snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported index snapshot version %d", snap.Version)
	}

	ix.params = snap.Params
	ix.docs = snap.Docs
	ix.postings = snap.Postings
	if ix.postings == nil {
		ix.postings = make(map[string][]posting)
	}
	ix.docIdx = make(map[string]int, len(ix.docs))
	total := 0
	for i, d := range ix.docs {
		ix.docIdx[d.ID] = i
		total += d.Len
	}
	if len(ix.docs) > 0 {
		ix.avgdl = float64(total) / float64(len(ix.docs))
	}
	ix.computeIDF()
	ix.state = stateConsolidated
	return nil
}
