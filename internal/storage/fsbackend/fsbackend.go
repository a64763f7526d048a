// Package fsbackend stores scan results as JSON files under a local
// directory. It is the fallback backend when nothing else is configured.
package fsbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yourorg/scanstore/internal/model"
	"github.com/yourorg/scanstore/internal/storage"
)

// Backend keeps one JSON file per package under <root>/packages and one per
// resolved provenance under <root>/provenance. Appends are read-modify-write
// and serialized by an in-process mutex; writes go through a temp file and
// rename so readers never observe a partial file.
type Backend struct {
	root string
	mu   sync.Mutex
}

func New(root string) (*Backend, error) {
	for _, dir := range []string{filepath.Join(root, "packages"), filepath.Join(root, "provenance")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}
	return &Backend{root: root}, nil
}

func (b *Backend) packagePath(id model.Identifier) string {
	return filepath.Join(b.root, "packages", filepath.FromSlash(id.Coordinates())+".json")
}

func (b *Backend) provenancePath(p model.KnownProvenance) string {
	return filepath.Join(b.root, "provenance", model.ProvenanceDigest(p)+".json")
}

func readResultsFile(path string) ([]model.ScanResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var results []model.ScanResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}

func writeResultsFile(path string, results []model.ScanResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (b *Backend) appendResult(path string, result model.ScanResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	results, err := readResultsFile(path)
	if err != nil {
		return err
	}
	return writeResultsFile(path, append(results, result))
}

func (b *Backend) ReadPackage(ctx context.Context, id model.Identifier) ([]model.ScanResult, error) {
	return readResultsFile(b.packagePath(id))
}

func (b *Backend) WritePackage(ctx context.Context, id model.Identifier, result model.ScanResult) error {
	return b.appendResult(b.packagePath(id), result)
}

func (b *Backend) ReadProvenance(ctx context.Context, p model.KnownProvenance) ([]model.ScanResult, error) {
	return readResultsFile(b.provenancePath(p))
}

func (b *Backend) WriteProvenance(ctx context.Context, p model.KnownProvenance, result model.ScanResult) error {
	if err := storage.ValidateProvenanceWrite(p); err != nil {
		return err
	}
	return b.appendResult(b.provenancePath(p), result)
}
