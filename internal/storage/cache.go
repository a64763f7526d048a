package storage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/scanstore/internal/matcher"
	"github.com/yourorg/scanstore/internal/model"
)

// defaultMaxParallel bounds concurrent backend calls of a batched read when
// no explicit limit is configured.
const defaultMaxParallel = 8

// Cache wraps exactly one package-keyed backend and adds validation, access
// statistics and the default compatibility-filtering algorithm. Backends
// never see the matcher and never touch the statistics.
type Cache struct {
	label       string
	backend     PackageBackend
	maxParallel int
	stats       accessStatistics
}

// NewCache wraps a backend. The label identifies the backend instance in
// logs and error messages. maxParallel bounds batched reads; values <= 0
// select the default.
func NewCache(label string, backend PackageBackend, maxParallel int) *Cache {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Cache{label: label, backend: backend, maxParallel: maxParallel}
}

func (c *Cache) Label() string { return c.label }

// Stats returns a snapshot of this cache's read/hit counters.
func (c *Cache) Stats() Stats { return c.stats.snapshot() }

// Read returns every result the backend has stored for the package,
// unfiltered. An empty list is a normal success, never an error.
func (c *Cache) Read(ctx context.Context, pkg model.Package) ([]model.ScanResult, error) {
	results, err := c.backend.ReadPackage(ctx, pkg.ID)
	if err != nil {
		// A failed delegation still counts as a read attempt.
		c.stats.recordRead(false)
		return nil, &BackendError{Backend: c.label, Err: err}
	}
	results = Deduplicate(results)
	c.stats.recordRead(len(results) > 0)
	return results, nil
}

// ReadCompatible returns the stored results for the package that were
// computed from its currently expected source location by a scanner the
// matcher accepts. Each narrowing step that empties the set is logged so
// cache misses stay diagnosable.
func (c *Cache) ReadCompatible(ctx context.Context, pkg model.Package, m *matcher.Matcher) ([]model.ScanResult, error) {
	all, err := c.backend.ReadPackage(ctx, pkg.ID)
	if err != nil {
		c.stats.recordRead(false)
		return nil, &BackendError{Backend: c.label, Err: err}
	}
	results := c.filterCompatible(pkg, all, m)
	c.stats.recordRead(len(results) > 0)
	return results, nil
}

func (c *Cache) filterCompatible(pkg model.Package, all []model.ScanResult, m *matcher.Matcher) []model.ScanResult {
	if len(all) == 0 {
		return nil
	}
	// Concurrent writers can have stored the same entry more than once.
	all = Deduplicate(all)

	expected := pkg.ExpectedProvenance()
	byProvenance := all
	if _, unknown := expected.(model.UnknownProvenance); !unknown {
		byProvenance = filterByExpected(c.label, pkg, all, expected)
	}
	if len(byProvenance) == 0 {
		return nil
	}

	if m == nil {
		return byProvenance
	}
	compatible := byProvenance[:0:0]
	for _, r := range byProvenance {
		if m.Matches(r.Scanner) {
			compatible = append(compatible, r)
		}
	}
	if len(compatible) == 0 {
		for _, r := range byProvenance {
			log.Debugf("cache %s: discarding result for %s: scanner %s does not satisfy %s",
				c.label, pkg.ID, r.Scanner, m)
		}
		return nil
	}
	return compatible
}

// filterByExpected retains the results computed from the package's currently
// expected source location, so a different revision published under the same
// version string is never silently reused.
func filterByExpected(label string, pkg model.Package, all []model.ScanResult, expected model.Provenance) []model.ScanResult {
	byProvenance := all[:0:0]
	for _, r := range all {
		if model.MatchesProvenance(r.Provenance, expected) {
			byProvenance = append(byProvenance, r)
		}
	}
	if len(byProvenance) == 0 {
		for _, r := range all {
			log.Debugf("cache %s: discarding result for %s: provenance %s does not match expected %s",
				label, pkg.ID, model.ProvenanceKey(r.Provenance), model.ProvenanceKey(expected))
		}
	}
	return byProvenance
}

// ReadPackages resolves many packages at once. Backends supporting a bulk
// query answer it in one round trip; otherwise single-package reads run with
// bounded parallelism. Only packages with at least one compatible result
// appear in the returned map.
func (c *Cache) ReadPackages(ctx context.Context, pkgs []model.Package, m *matcher.Matcher) (map[model.Identifier][]model.ScanResult, error) {
	if batch, ok := c.backend.(PackageBatchReader); ok {
		return c.readPackagesBatch(ctx, batch, pkgs, m)
	}

	var mu sync.Mutex
	merged := make(map[model.Identifier][]model.ScanResult, len(pkgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for _, pkg := range pkgs {
		pkg := pkg
		g.Go(func() error {
			results, err := c.ReadCompatible(ctx, pkg, m)
			if err != nil {
				return err
			}
			if len(results) > 0 {
				mu.Lock()
				merged[pkg.ID] = results
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *Cache) readPackagesBatch(ctx context.Context, batch PackageBatchReader, pkgs []model.Package, m *matcher.Matcher) (map[model.Identifier][]model.ScanResult, error) {
	ids := make([]model.Identifier, len(pkgs))
	for i, pkg := range pkgs {
		ids[i] = pkg.ID
	}
	all, err := batch.ReadPackages(ctx, ids)
	if err != nil {
		for range pkgs {
			c.stats.recordRead(false)
		}
		return nil, &BackendError{Backend: c.label, Err: err}
	}
	merged := make(map[model.Identifier][]model.ScanResult, len(all))
	for _, pkg := range pkgs {
		results := c.filterCompatible(pkg, all[pkg.ID], m)
		c.stats.recordRead(len(results) > 0)
		if len(results) > 0 {
			merged[pkg.ID] = results
		}
	}
	return merged, nil
}

// Add stores a result for the package. Ineligible results (no scanned
// files, unknown or unresolved provenance) are rejected before the backend
// is contacted.
func (c *Cache) Add(ctx context.Context, id model.Identifier, result model.ScanResult) error {
	if err := result.CheckPersistable(); err != nil {
		log.Debugf("cache %s: not adding result for %s: %v", c.label, id, err)
		return &ValidationError{Reason: err.Error()}
	}

	start := time.Now()
	err := c.backend.WritePackage(ctx, id, result)
	elapsed := time.Since(start)
	if err != nil {
		log.Tracef("cache %s: write for %s failed after %s: %v", c.label, id, elapsed, err)
		return &BackendError{Backend: c.label, Err: err}
	}
	log.Tracef("cache %s: wrote result for %s in %s", c.label, id, elapsed)
	return nil
}
