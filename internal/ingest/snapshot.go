package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/verasoft/docchat/internal/chunker"
)

// snapshotFile is the durable form of one index generation: the chunk
// list plus the opaque serialized index that reproduces its rankings.
type snapshotFile struct {
	Chunks []chunker.Chunk `json:"chunks"`
	Index  json.RawMessage `json:"index"`
}

// writeSnapshot persists a generation atomically: write a temporary
// file in the destination directory, then rename it over the target, so
// a crash mid-write can never leave a corrupt snapshot behind.
func writeSnapshot(path string, chunks []chunker.Chunk, indexData []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	data, err := json.Marshal(snapshotFile{Chunks: chunks, Index: indexData})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads a previously written snapshot. A missing file is
// reported with fs.ErrNotExist so callers can distinguish "no snapshot
// yet" from corruption.
func readSnapshot(path string) (snapshotFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshotFile{}, err
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshotFile{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}
