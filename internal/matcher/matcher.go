// Package matcher decides whether a stored scan result is compatible with
// the currently configured scanner.
package matcher

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"github.com/yourorg/scanstore/internal/model"
)

// Matcher is a compatibility specification over scanner details. A stored
// result is reusable when the scanner name matches the pattern, its version
// falls into [MinVersion, MaxVersion) and, if Configuration is set, the
// configuration string is identical.
type Matcher struct {
	namePattern   *regexp.Regexp
	minVersion    *semver.Version
	maxVersion    *semver.Version
	configuration *string
}

// New builds a matcher. The name pattern is anchored so it must match the
// full scanner name. Construction fails when the pattern does not compile or
// the version range is empty.
func New(namePattern string, minVersion, maxVersion *semver.Version, configuration *string) (*Matcher, error) {
	re, err := regexp.Compile("^(?:" + namePattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid scanner name pattern %q: %w", namePattern, err)
	}
	if minVersion == nil || maxVersion == nil {
		return nil, fmt.Errorf("matcher requires both a minimum and a maximum version")
	}
	if !minVersion.LessThan(maxVersion) {
		return nil, fmt.Errorf("empty version range: minimum %s must be below maximum %s", minVersion, maxVersion)
	}
	return &Matcher{
		namePattern:   re,
		minVersion:    minVersion,
		maxVersion:    maxVersion,
		configuration: configuration,
	}, nil
}

// Default builds the matcher used when no operator overrides are configured:
// exact scanner name, versions from the current one up to (excluding) the
// next minor release, and the exact current configuration.
func Default(details model.ScannerDetails) (*Matcher, error) {
	version, err := semver.NewVersion(details.Version)
	if err != nil {
		return nil, fmt.Errorf("scanner %s has unparseable version %q: %w", details.Name, details.Version, err)
	}
	maxVersion := version.IncMinor()
	config := details.Configuration
	return New(regexp.QuoteMeta(details.Name), version, &maxVersion, &config)
}

// Matches reports whether a stored result produced by the given scanner may
// substitute for a fresh scan. Any criterion failing means no; there is no
// partial credit.
func (m *Matcher) Matches(details model.ScannerDetails) bool {
	if !m.namePattern.MatchString(details.Name) {
		return false
	}
	version, err := semver.NewVersion(details.Version)
	if err != nil {
		return false
	}
	if version.LessThan(m.minVersion) || !version.LessThan(m.maxVersion) {
		return false
	}
	if m.configuration != nil && *m.configuration != details.Configuration {
		return false
	}
	return true
}

func (m *Matcher) String() string {
	config := "any configuration"
	if m.configuration != nil {
		config = fmt.Sprintf("configuration %q", *m.configuration)
	}
	return fmt.Sprintf("name =~ %s, version in [%s, %s), %s",
		m.namePattern, m.minVersion, m.maxVersion, config)
}
