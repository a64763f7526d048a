package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/scanstore/internal/matcher"
	"github.com/yourorg/scanstore/internal/model"
)

// fakeBackend is an in-memory package-keyed backend with injectable errors.
type fakeBackend struct {
	mu       sync.Mutex
	results  map[model.Identifier][]model.ScanResult
	readErr  error
	writeErr error
	reads    []model.Identifier
	writes   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{results: map[model.Identifier][]model.ScanResult{}}
}

func (f *fakeBackend) ReadPackage(ctx context.Context, id model.Identifier) ([]model.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, id)
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.results[id], nil
}

func (f *fakeBackend) WritePackage(ctx context.Context, id model.Identifier, result model.ScanResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.results[id] = append(f.results[id], result)
	return nil
}

var scanCode = model.ScannerDetails{Name: "ScanCode", Version: "3.2.1", Configuration: "--copyright"}

func testPackage(name, revision string) model.Package {
	return model.Package{
		ID: model.Identifier{Type: "Maven", Namespace: "org.example", Name: name, Version: "1.0.0"},
		VCS: model.VCSInfo{
			Type:     "Git",
			URL:      "https://example.com/" + name + ".git",
			Revision: revision,
		},
	}
}

func testResult(pkg model.Package, revision string, scanner model.ScannerDetails) model.ScanResult {
	return model.ScanResult{
		Provenance: model.RepositoryProvenance{
			VCS:              model.VCSInfo{Type: "Git", URL: pkg.VCS.URL, Revision: revision},
			ResolvedRevision: revision,
		},
		Scanner: scanner,
		Summary: model.ScanSummary{FileCount: 10},
	}
}

func defaultMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()
	m, err := matcher.Default(scanCode)
	require.NoError(t, err)
	return m
}

func TestCacheReadRecordsStats(t *testing.T) {
	backend := newFakeBackend()
	cache := NewCache("test", backend, 0)
	pkg := testPackage("lib", "abc123")

	results, err := cache.Read(context.Background(), pkg)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, testResult(pkg, "abc123", scanCode)))

	results, err = cache.Read(context.Background(), pkg)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.NumReads)
	assert.Equal(t, int64(1), stats.NumHits)
}

func TestCacheReadWrapsBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.readErr = errors.New("connection refused")
	cache := NewCache("test", backend, 0)

	_, err := cache.Read(context.Background(), testPackage("lib", "abc123"))
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "test", backendErr.Backend)
}

// A failed delegation is still a read attempt: the counters must not paint a
// healthy hit ratio during a backend outage.
func TestCacheReadCountsFailedAttempts(t *testing.T) {
	backend := newFakeBackend()
	backend.readErr = errors.New("db down")
	cache := NewCache("test", backend, 0)
	pkg := testPackage("lib", "abc123")

	_, err := cache.Read(context.Background(), pkg)
	require.Error(t, err)
	_, err = cache.ReadCompatible(context.Background(), pkg, defaultMatcher(t))
	require.Error(t, err)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.NumReads)
	assert.Equal(t, int64(0), stats.NumHits)
}

func TestCacheReadPackagesBulkCountsFailedAttempts(t *testing.T) {
	backend := &fakeBatchBackend{fakeBackend: newFakeBackend()}
	backend.readErr = errors.New("db down")
	cache := NewCache("test", backend, 0)

	pkgs := []model.Package{testPackage("a", "abc123"), testPackage("b", "abc123")}
	_, err := cache.ReadPackages(context.Background(), pkgs, defaultMatcher(t))
	require.Error(t, err)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.NumReads)
	assert.Equal(t, int64(0), stats.NumHits)
}

// Entries stored twice by concurrent scan/write cycles come back once.
func TestCacheReadDeduplicates(t *testing.T) {
	backend := newFakeBackend()
	cache := NewCache("test", backend, 0)
	pkg := testPackage("lib", "abc123")

	result := testResult(pkg, "abc123", scanCode)
	require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, result))
	require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, result))

	results, err := cache.Read(context.Background(), pkg)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = cache.ReadCompatible(context.Background(), pkg, defaultMatcher(t))
	require.NoError(t, err)
	assert.Len(t, results, 1)

	merged, err := cache.ReadPackages(context.Background(), []model.Package{pkg}, defaultMatcher(t))
	require.NoError(t, err)
	assert.Len(t, merged[pkg.ID], 1)
}

// A store holding entries for two revisions of the same version only yields
// the entry matching the package's currently expected revision.
func TestCacheReadCompatibleFiltersProvenance(t *testing.T) {
	backend := newFakeBackend()
	cache := NewCache("test", backend, 0)
	pkg := testPackage("lib", "abc123")

	current := testResult(pkg, "abc123", scanCode)
	stale := testResult(pkg, "def456", scanCode)
	require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, stale))
	require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, current))

	results, err := cache.ReadCompatible(context.Background(), pkg, defaultMatcher(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, current, results[0])
}

func TestCacheReadCompatibleFiltersScanner(t *testing.T) {
	backend := newFakeBackend()
	cache := NewCache("test", backend, 0)
	pkg := testPackage("lib", "abc123")

	tooOld := testResult(pkg, "abc123", model.ScannerDetails{Name: "ScanCode", Version: "3.1.0", Configuration: "--copyright"})
	nextMinor := testResult(pkg, "abc123", model.ScannerDetails{Name: "ScanCode", Version: "3.3.0", Configuration: "--copyright"})
	patch := testResult(pkg, "abc123", model.ScannerDetails{Name: "ScanCode", Version: "3.2.5", Configuration: "--copyright"})
	for _, r := range []model.ScanResult{tooOld, nextMinor, patch} {
		require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, r))
	}

	results, err := cache.ReadCompatible(context.Background(), pkg, defaultMatcher(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, patch, results[0])

	// A miss after filtering is still a read attempt, not a hit.
	empty := testPackage("other", "abc123")
	results, err = cache.ReadCompatible(context.Background(), empty, defaultMatcher(t))
	require.NoError(t, err)
	assert.Empty(t, results)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.NumReads)
	assert.Equal(t, int64(1), stats.NumHits)
}

func TestCacheAddRejectsIneligibleResults(t *testing.T) {
	backend := newFakeBackend()
	cache := NewCache("test", backend, 0)
	pkg := testPackage("lib", "abc123")

	noFiles := testResult(pkg, "abc123", scanCode)
	noFiles.Summary.FileCount = 0
	err := cache.Add(context.Background(), pkg.ID, noFiles)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	unknown := testResult(pkg, "abc123", scanCode)
	unknown.Provenance = model.UnknownProvenance{}
	err = cache.Add(context.Background(), pkg.ID, unknown)
	require.ErrorAs(t, err, &validationErr)

	// The backend was never contacted for either rejection.
	assert.Equal(t, 0, backend.writes)

	require.NoError(t, cache.Add(context.Background(), pkg.ID, testResult(pkg, "abc123", scanCode)))
	assert.Equal(t, 1, backend.writes)
}

func TestCacheReadPackagesBoundedParallel(t *testing.T) {
	backend := newFakeBackend()
	cache := NewCache("test", backend, 2)

	pkgs := make([]model.Package, 0, 10)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		pkg := testPackage(name, "abc123")
		pkgs = append(pkgs, pkg)
		if name != "j" {
			require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, testResult(pkg, "abc123", scanCode)))
		}
	}

	merged, err := cache.ReadPackages(context.Background(), pkgs, defaultMatcher(t))
	require.NoError(t, err)
	assert.Len(t, merged, 9)
	_, ok := merged[pkgs[9].ID]
	assert.False(t, ok)
	assert.Len(t, backend.reads, 10)
}

type fakeBatchBackend struct {
	*fakeBackend
	batchCalls int
}

func (f *fakeBatchBackend) ReadPackages(ctx context.Context, ids []model.Identifier) (map[model.Identifier][]model.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := map[model.Identifier][]model.ScanResult{}
	for _, id := range ids {
		if rs := f.results[id]; len(rs) > 0 {
			out[id] = rs
		}
	}
	return out, nil
}

func TestCacheReadPackagesPrefersBulkQuery(t *testing.T) {
	backend := &fakeBatchBackend{fakeBackend: newFakeBackend()}
	cache := NewCache("test", backend, 0)

	pkg := testPackage("lib", "abc123")
	require.NoError(t, backend.WritePackage(context.Background(), pkg.ID, testResult(pkg, "abc123", scanCode)))
	other := testPackage("other", "abc123")

	merged, err := cache.ReadPackages(context.Background(), []model.Package{pkg, other}, defaultMatcher(t))
	require.NoError(t, err)
	assert.Len(t, merged, 1)
	assert.Equal(t, 1, backend.batchCalls)
	assert.Empty(t, backend.reads)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.NumReads)
	assert.Equal(t, int64(1), stats.NumHits)
}
