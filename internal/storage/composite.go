package storage

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/yourorg/scanstore/internal/matcher"
	"github.com/yourorg/scanstore/internal/model"
)

// Composite chains multiple caches: an ordered list of readers consulted
// until one returns a non-empty result, and a set of writers that every
// stored result is fanned out to.
type Composite struct {
	readers []*Cache
	writers []*Cache
}

func NewComposite(readers, writers []*Cache) *Composite {
	return &Composite{readers: readers, writers: writers}
}

func (s *Composite) Readers() []*Cache { return s.readers }

func (s *Composite) Writers() []*Cache { return s.writers }

// Read consults the readers in priority order. The first non-empty success
// wins. Empty successes move on to the next reader; failures are recorded
// and skipped, so one down backend degrades to a miss rather than an error.
// Only when every reader failed is the aggregated failure returned.
func (s *Composite) Read(ctx context.Context, pkg model.Package, m *matcher.Matcher) ([]model.ScanResult, error) {
	var failures []error
	anySuccess := false

	for _, reader := range s.readers {
		results, err := reader.ReadCompatible(ctx, pkg, m)
		if err != nil {
			log.Warnf("reading %s from cache %s failed: %v", pkg.ID, reader.Label(), err)
			failures = append(failures, err)
			continue
		}
		anySuccess = true
		if len(results) > 0 {
			return results, nil
		}
	}

	if !anySuccess && len(failures) > 0 {
		return nil, &AggregateError{Errs: failures}
	}
	return nil, nil
}

// ReadPackages resolves a batch of packages with the same first-non-empty
// rule applied per package: a reader that resolves a subset removes exactly
// that subset from the work handed to the readers after it.
func (s *Composite) ReadPackages(ctx context.Context, pkgs []model.Package, m *matcher.Matcher) (map[model.Identifier][]model.ScanResult, error) {
	resolved := make(map[model.Identifier][]model.ScanResult)
	remaining := pkgs
	var failures []error
	anySuccess := false

	for _, reader := range s.readers {
		if len(remaining) == 0 {
			break
		}
		hits, err := reader.ReadPackages(ctx, remaining, m)
		if err != nil {
			log.Warnf("batch read of %d packages from cache %s failed: %v", len(remaining), reader.Label(), err)
			failures = append(failures, err)
			continue
		}
		anySuccess = true
		if len(hits) == 0 {
			continue
		}
		next := remaining[:0:0]
		for _, pkg := range remaining {
			if results, ok := hits[pkg.ID]; ok {
				resolved[pkg.ID] = results
			} else {
				next = append(next, pkg)
			}
		}
		remaining = next
	}

	if !anySuccess && len(failures) > 0 {
		return nil, &AggregateError{Errs: failures}
	}
	return resolved, nil
}

// Add offers the result to every writer unconditionally and concurrently.
// All failures are collected; writers that succeeded have already durably
// stored the result, there is no rollback.
func (s *Composite) Add(ctx context.Context, id model.Identifier, result model.ScanResult) error {
	if err := result.CheckPersistable(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	var mu sync.Mutex
	var failures []error
	var wg sync.WaitGroup
	for _, writer := range s.writers {
		writer := writer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := writer.Add(ctx, id, result); err != nil {
				log.Warnf("writing %s to cache %s failed: %v", id, writer.Label(), err)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failures) > 0 {
		return &AggregateError{Errs: failures}
	}
	return nil
}
