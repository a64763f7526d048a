package storage

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yourorg/scanstore/internal/model"
)

// FilterByPath narrows a result to the findings located under the given
// root-relative path. An empty path retains everything. This is a pure
// transformation over an already-fetched result.
func FilterByPath(result model.ScanResult, path string) model.ScanResult {
	if path == "" {
		return result
	}
	keep := func(p string) bool {
		return p == path || strings.HasPrefix(p, path+"/")
	}
	return filterFindings(result, keep)
}

// FilterByIgnorePatterns drops findings whose location matches any of the
// given glob patterns. Patterns support doublestar globs ("**/*.min.js").
// An empty pattern list retains everything.
func FilterByIgnorePatterns(result model.ScanResult, patterns []string) model.ScanResult {
	if len(patterns) == 0 {
		return result
	}
	keep := func(p string) bool {
		for _, pattern := range patterns {
			if ok, err := doublestar.Match(pattern, p); err == nil && ok {
				return false
			}
		}
		return true
	}
	return filterFindings(result, keep)
}

func filterFindings(result model.ScanResult, keep func(path string) bool) model.ScanResult {
	summary := result.Summary

	licenses := make([]model.LicenseFinding, 0, len(summary.LicenseFindings))
	for _, f := range summary.LicenseFindings {
		if keep(f.Location.Path) {
			licenses = append(licenses, f)
		}
	}
	copyrights := make([]model.CopyrightFinding, 0, len(summary.CopyrightFindings))
	for _, f := range summary.CopyrightFindings {
		if keep(f.Location.Path) {
			copyrights = append(copyrights, f)
		}
	}
	// Issues without a path apply to the scan as a whole and are always kept.
	issues := make([]model.Issue, 0, len(summary.Issues))
	for _, issue := range summary.Issues {
		if issue.Path == "" || keep(issue.Path) {
			issues = append(issues, issue)
		}
	}

	summary.LicenseFindings = licenses
	summary.CopyrightFindings = copyrights
	summary.Issues = issues
	result.Summary = summary
	return result
}
