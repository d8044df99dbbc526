// Package ingest coordinates the document lifecycle: extract, chunk,
// rebuild the ranking index, persist the snapshot and the document
// records, and publish the new index generation.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/verasoft/docchat/internal/chunker"
	"github.com/verasoft/docchat/internal/extract"
	"github.com/verasoft/docchat/internal/index"
	"github.com/verasoft/docchat/internal/retrieval"
	"github.com/verasoft/docchat/internal/storage"
)

// ErrNoEligibleFile is returned by ReindexLatest when no ingestable
// source file exists.
var ErrNoEligibleFile = errors.New("no eligible source file found")

// lastSourceKey is the settings key holding the path of the last
// successfully ingested source file.
const lastSourceKey = "last_source"

// Store is the persistence the lifecycle manager needs.
type Store interface {
	SaveDocument(doc storage.Document) error
	ListDocuments() ([]storage.Document, error)
	GetDocument(id string) (storage.Document, error)
	DeleteDocument(id string) error
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Config holds the lifecycle manager's tunables.
type Config struct {
	DocsDir      string
	SnapshotPath string
	WindowWords  int
	OverlapWords int
	Params       index.Params
}

// Manager is the sole writer of the ranking index. Ingestion builds a
// complete new generation under a mutex and publishes it with an atomic
// swap, so concurrent searches always see a fully consolidated index.
type Manager struct {
	store  Store
	handle *retrieval.Handle
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex // serializes index builds
	reindex singleflight.Group
}

// NewManager creates a lifecycle Manager publishing generations to handle.
func NewManager(store Store, handle *retrieval.Handle, cfg Config) *Manager {
	return &Manager{
		store:  store,
		handle: handle,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// Ingest processes one source file: extract text, chunk it, build and
// consolidate a fresh index over the document's chunks, persist the
// snapshot, then the document and its chunk records, and finally swap
// the new generation in. Any failure leaves the previously published
// generation untouched and the document not ingested.
//
// Each ingest replaces the whole index with this document's chunk set;
// the corpus is always the most recently ingested source.
func (m *Manager) Ingest(path, originalName string) (storage.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	text, err := extract.Text(path)
	if err != nil {
		return storage.Document{}, fmt.Errorf("extracting text from %s: %w", filepath.Base(path), err)
	}

	chunks, err := chunker.Split(text, m.cfg.WindowWords, m.cfg.OverlapWords)
	if err != nil {
		return storage.Document{}, err
	}

	ix := index.New(m.cfg.Params)
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if err := ix.AddDoc(c.ID, c.Text); err != nil {
			return storage.Document{}, fmt.Errorf("indexing chunk %s: %w", c.ID, err)
		}
	}
	if err := ix.Consolidate(); err != nil {
		if errors.Is(err, index.ErrInsufficientCorpus) {
			m.logger.Warn("not enough chunks to consolidate index, keeping previous generation",
				"file", filepath.Base(path), "chunks", len(chunks))
		}
		return storage.Document{}, fmt.Errorf("consolidating index: %w", err)
	}

	indexData, err := ix.Export()
	if err != nil {
		return storage.Document{}, fmt.Errorf("exporting index: %w", err)
	}
	if err := writeSnapshot(m.cfg.SnapshotPath, chunks, indexData); err != nil {
		return storage.Document{}, fmt.Errorf("persisting index snapshot: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return storage.Document{}, fmt.Errorf("stating source file: %w", err)
	}

	doc := storage.Document{
		ID:           uuid.New().String(),
		Filename:     filepath.Base(path),
		OriginalName: originalName,
		Filepath:     path,
		Filesize:     info.Size(),
		Content:      text,
		Indexed:      true,
		UploadedAt:   time.Now().UTC(),
		ChunkCount:   len(chunks),
	}
	if doc.OriginalName == "" {
		doc.OriginalName = doc.Filename
	}
	for _, c := range chunks {
		doc.Chunks = append(doc.Chunks, storage.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Index:      c.Ordinal,
			Content:    c.Text,
		})
	}
	if err := m.store.SaveDocument(doc); err != nil {
		return storage.Document{}, fmt.Errorf("saving document: %w", err)
	}

	if err := m.store.SetSetting(lastSourceKey, path); err != nil {
		m.logger.Warn("could not persist last source pointer", "error", err)
	}

	// Publish only after everything durable succeeded.
	m.handle.Publish(retrieval.NewGeneration(ix, chunks))

	m.logger.Info("document ingested", "document_id", doc.ID, "file", doc.Filename, "chunks", len(chunks))
	return doc, nil
}

// List returns all documents, newest first.
func (m *Manager) List() ([]storage.Document, error) {
	return m.store.ListDocuments()
}

// Document returns one document with its chunks.
func (m *Manager) Document(id string) (storage.Document, error) {
	return m.store.GetDocument(id)
}

// Delete removes the backing file and the document record (cascading
// its chunks). The currently published index generation is left as is:
// deleted content stays searchable until the next ingest or reindex.
func (m *Manager) Delete(id string) (storage.Document, error) {
	doc, err := m.store.GetDocument(id)
	if err != nil {
		return storage.Document{}, err
	}

	if err := os.Remove(doc.Filepath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.Document{}, fmt.Errorf("removing file %s: %w", doc.Filepath, err)
	}
	if err := m.store.DeleteDocument(id); err != nil {
		return storage.Document{}, err
	}

	m.logger.Info("document deleted", "document_id", id, "file", doc.Filename)
	return doc, nil
}

// ReindexLatest re-ingests the most recent eligible source: the
// persisted last-source pointer when it still exists, otherwise the
// newest supported file in the docs directory. Concurrent calls
// coalesce into a single ingest.
func (m *Manager) ReindexLatest() (string, error) {
	v, err, _ := m.reindex.Do("reindex-latest", func() (any, error) {
		src, err := m.latestSource()
		if err != nil {
			return "", err
		}
		if _, err := m.Ingest(src, filepath.Base(src)); err != nil {
			return "", err
		}
		return filepath.Base(src), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// latestSource resolves the source file for ReindexLatest.
func (m *Manager) latestSource() (string, error) {
	if path, err := m.store.GetSetting(lastSourceKey); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}

	entries, err := os.ReadDir(m.cfg.DocsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoEligibleFile
		}
		return "", fmt.Errorf("reading docs directory: %w", err)
	}

	var best string
	var bestTime time.Time
	for _, e := range entries {
		if e.IsDir() || !extract.Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		// Newest wins; name order breaks modification-time ties.
		if best == "" || info.ModTime().After(bestTime) ||
			(info.ModTime().Equal(bestTime) && e.Name() < filepath.Base(best)) {
			best = filepath.Join(m.cfg.DocsDir, e.Name())
			bestTime = info.ModTime()
		}
	}
	if best == "" {
		return "", ErrNoEligibleFile
	}
	return best, nil
}

// Bootstrap restores the index at startup: load the persisted snapshot
// if one exists, otherwise try to index the latest eligible source.
// Bootstrap never fails the process; an empty corpus just means no
// context is retrieved until something is ingested.
func (m *Manager) Bootstrap() {
	snap, err := readSnapshot(m.cfg.SnapshotPath)
	switch {
	case err == nil:
		ix := index.New(m.cfg.Params)
		if impErr := ix.Import(snap.Index); impErr != nil {
			m.logger.Error("loading persisted index failed, reindexing", "error", impErr)
		} else {
			m.handle.Publish(retrieval.NewGeneration(ix, snap.Chunks))
			m.logger.Info("index restored from snapshot", "chunks", len(snap.Chunks))
			return
		}
	case !errors.Is(err, fs.ErrNotExist):
		m.logger.Error("reading index snapshot failed, reindexing", "error", err)
	}

	if _, err := m.ReindexLatest(); err != nil {
		if errors.Is(err, ErrNoEligibleFile) {
			m.logger.Warn("no source files to index yet")
			return
		}
		m.logger.Error("bootstrap reindex failed", "error", err)
	}
}

// SaveUpload stores an uploaded file in the docs directory under a
// collision-free name derived from the original and returns its path.
func (m *Manager) SaveUpload(originalName string, r io.Reader) (string, error) {
	if err := os.MkdirAll(m.cfg.DocsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating docs directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	base = strings.ReplaceAll(base, " ", "_")
	name := fmt.Sprintf("%s_%d%s", base, time.Now().UnixMilli(), ext)
	path := filepath.Join(m.cfg.DocsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing upload file: %w", err)
	}
	return path, nil
}
