package fsbackend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/scanstore/internal/model"
	"github.com/yourorg/scanstore/internal/storage"
)

func testResult(revision string) model.ScanResult {
	return model.ScanResult{
		Provenance: model.RepositoryProvenance{
			VCS:              model.VCSInfo{Type: "Git", URL: "https://example.com/lib.git", Revision: revision},
			ResolvedRevision: revision,
		},
		Scanner: model.ScannerDetails{Name: "ScanCode", Version: "3.2.1", Configuration: "--copyright"},
		Summary: model.ScanSummary{FileCount: 3},
	}
}

func TestPackageRoundtrip(t *testing.T) {
	backend, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id := model.Identifier{Type: "Maven", Namespace: "org.example", Name: "lib", Version: "1.0.0"}

	results, err := backend.ReadPackage(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, results)

	first := testResult("abc123")
	second := testResult("def456")
	require.NoError(t, backend.WritePackage(ctx, id, first))
	require.NoError(t, backend.WritePackage(ctx, id, second))

	results, err = backend.ReadPackage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []model.ScanResult{first, second}, results)

	other := id
	other.Version = "2.0.0"
	results, err = backend.ReadPackage(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProvenanceRoundtrip(t *testing.T) {
	backend, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	result := testResult("abc123")
	prov := result.Provenance.(model.RepositoryProvenance)

	require.NoError(t, backend.WriteProvenance(ctx, prov, result))

	results, err := backend.ReadProvenance(ctx, prov)
	require.NoError(t, err)
	assert.Equal(t, []model.ScanResult{result}, results)

	otherRevision := prov
	otherRevision.ResolvedRevision = "def456"
	otherRevision.VCS.Revision = "def456"
	results, err = backend.ReadProvenance(ctx, otherRevision)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWriteProvenanceRejectsIneligibleProvenance(t *testing.T) {
	backend, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	result := testResult("abc123")

	unresolved := model.RepositoryProvenance{
		VCS: model.VCSInfo{Type: "Git", URL: "https://example.com/lib.git"},
	}
	err = backend.WriteProvenance(ctx, unresolved, result)
	var validationErr *storage.ValidationError
	require.ErrorAs(t, err, &validationErr)

	subPath := model.RepositoryProvenance{
		VCS:              model.VCSInfo{Type: "Git", URL: "https://example.com/lib.git", Revision: "abc123", Path: "sub/dir"},
		ResolvedRevision: "abc123",
	}
	err = backend.WriteProvenance(ctx, subPath, result)
	require.ErrorAs(t, err, &validationErr)

	// Artifact provenances have no revision or sub-path to validate.
	artifact := model.ArtifactProvenance{Source: model.RemoteArtifact{
		URL:  "https://example.com/lib-1.0.tgz",
		Hash: model.Hash{Value: "deadbeef", Algorithm: "SHA-1"},
	}}
	artifactResult := result
	artifactResult.Provenance = artifact
	assert.NoError(t, backend.WriteProvenance(ctx, artifact, artifactResult))
}
