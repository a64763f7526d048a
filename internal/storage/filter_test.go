package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/scanstore/internal/model"
)

func filterInput() model.ScanResult {
	pkg := testPackage("lib", "abc123")
	result := testResult(pkg, "abc123", scanCode)
	result.Summary.LicenseFindings = []model.LicenseFinding{
		{License: "Apache-2.0", Location: model.TextLocation{Path: "LICENSE"}},
		{License: "MIT", Location: model.TextLocation{Path: "sub/dir/LICENSE"}},
		{License: "BSD-3-Clause", Location: model.TextLocation{Path: "sub/dir/vendor/x.js"}},
	}
	result.Summary.CopyrightFindings = []model.CopyrightFinding{
		{Statement: "Copyright Example", Location: model.TextLocation{Path: "sub/dir/main.go"}},
		{Statement: "Copyright Vendor", Location: model.TextLocation{Path: "other/main.go"}},
	}
	result.Summary.Issues = []model.Issue{
		{Source: "ScanCode", Message: "timeout", Severity: model.SeverityError, Path: "sub/dir/huge.bin"},
		{Source: "ScanCode", Message: "scan degraded", Severity: model.SeverityWarning},
	}
	return result
}

func TestFilterByPath(t *testing.T) {
	filtered := FilterByPath(filterInput(), "sub/dir")

	licenses := filtered.Summary.LicenseFindings
	assert.Len(t, licenses, 2)
	for _, f := range licenses {
		assert.NotEqual(t, "LICENSE", f.Location.Path)
	}
	assert.Len(t, filtered.Summary.CopyrightFindings, 1)
	assert.Equal(t, "sub/dir/main.go", filtered.Summary.CopyrightFindings[0].Location.Path)

	// The pathless issue survives, the file-bound one is under the path.
	assert.Len(t, filtered.Summary.Issues, 2)
}

func TestFilterByPathNoPrefixConfusion(t *testing.T) {
	pkg := testPackage("lib", "abc123")
	result := testResult(pkg, "abc123", scanCode)
	result.Summary.LicenseFindings = []model.LicenseFinding{
		{License: "MIT", Location: model.TextLocation{Path: "sub/dirent/LICENSE"}},
	}

	filtered := FilterByPath(result, "sub/dir")
	assert.Empty(t, filtered.Summary.LicenseFindings)
}

func TestFilterByPathEmptyRetainsAll(t *testing.T) {
	input := filterInput()
	assert.Equal(t, input, FilterByPath(input, ""))
}

func TestFilterByIgnorePatterns(t *testing.T) {
	filtered := FilterByIgnorePatterns(filterInput(), []string{"**/vendor/**", "other/**"})

	assert.Len(t, filtered.Summary.LicenseFindings, 2)
	assert.Len(t, filtered.Summary.CopyrightFindings, 1)
	assert.Equal(t, "sub/dir/main.go", filtered.Summary.CopyrightFindings[0].Location.Path)
	assert.Len(t, filtered.Summary.Issues, 2)
}

func TestFilterByIgnorePatternsEmptyRetainsAll(t *testing.T) {
	input := filterInput()
	assert.Equal(t, input, FilterByIgnorePatterns(input, nil))
}
