// Package storage contains the scan result cache engine: the backend seams,
// the single-backend cache wrapper with validation and statistics, and the
// composite cache that chains multiple backends.
package storage

import (
	"context"
	"fmt"

	"github.com/yourorg/scanstore/internal/model"
)

// PackageReader reads all results ever stored for a package, unfiltered.
// Compatibility filtering is the cache engine's job, never the backend's.
type PackageReader interface {
	ReadPackage(ctx context.Context, id model.Identifier) ([]model.ScanResult, error)
}

// PackageWriter stores a result under a package identifier.
type PackageWriter interface {
	WritePackage(ctx context.Context, id model.Identifier, result model.ScanResult) error
}

// ProvenanceReader reads results for one exact, resolved source location.
type ProvenanceReader interface {
	ReadProvenance(ctx context.Context, p model.KnownProvenance) ([]model.ScanResult, error)
}

// ProvenanceWriter stores a result under its resolved provenance.
type ProvenanceWriter interface {
	WriteProvenance(ctx context.Context, p model.KnownProvenance, result model.ScanResult) error
}

// PackageBackend is the package-keyed store contract a Cache wraps.
type PackageBackend interface {
	PackageReader
	PackageWriter
}

// PackageBatchReader is an optional backend capability: a single bulk query
// for many packages. The cache engine falls back to parallel single-package
// reads when a backend does not implement it.
type PackageBatchReader interface {
	ReadPackages(ctx context.Context, ids []model.Identifier) (map[model.Identifier][]model.ScanResult, error)
}

// ValidateProvenanceWrite performs the identity checks every backend must
// apply before storing a result by provenance: the revision must be fully
// resolved, and only whole-repository scans are cacheable (a sub-path scan
// covers a different file set than the provenance key implies).
func ValidateProvenanceWrite(p model.KnownProvenance) error {
	repo, ok := p.(model.RepositoryProvenance)
	if !ok {
		return nil
	}
	if !repo.IsResolved() {
		return &ValidationError{Reason: fmt.Sprintf("repository provenance for %s has no resolved revision", repo.VCS.URL)}
	}
	if repo.VCS.Path != "" {
		return &ValidationError{Reason: fmt.Sprintf("repository provenance for %s has sub-path %q, only whole-repository scans are cacheable", repo.VCS.URL, repo.VCS.Path)}
	}
	return nil
}
