package matcher

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/yourorg/scanstore/internal/model"
)

// Option keys recognized per scanner, looked up as "<scannerName>.<key>".
const (
	optNamePattern = "namePattern"
	optMinVersion  = "minVersion"
	optMaxVersion  = "maxVersion"
	optMatchConfig = "matchConfig"
)

// FromOptions builds a matcher for the current scanner, applying any
// operator overrides found in opts. Options use keys of the form
// "<scannerName>.<property>"; absent options keep the Default behavior.
// Setting "<scannerName>.matchConfig" to false accepts any configuration.
func FromOptions(details model.ScannerDetails, opts map[string]string) (*Matcher, error) {
	currentVersion, err := semver.NewVersion(details.Version)
	if err != nil {
		return nil, fmt.Errorf("scanner %s has unparseable version %q: %w", details.Name, details.Version, err)
	}

	namePattern := regexp.QuoteMeta(details.Name)
	minVersion := currentVersion
	nextMinor := currentVersion.IncMinor()
	maxVersion := &nextMinor
	config := &details.Configuration

	if v, ok := opts[details.Name+"."+optNamePattern]; ok {
		namePattern = v
	}
	if v, ok := opts[details.Name+"."+optMinVersion]; ok {
		minVersion, err = semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("option %s.%s: %w", details.Name, optMinVersion, err)
		}
	}
	if v, ok := opts[details.Name+"."+optMaxVersion]; ok {
		maxVersion, err = semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("option %s.%s: %w", details.Name, optMaxVersion, err)
		}
	}
	if v, ok := opts[details.Name+"."+optMatchConfig]; ok {
		match, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("option %s.%s: %w", details.Name, optMatchConfig, err)
		}
		if !match {
			config = nil
		}
	}

	return New(namePattern, minVersion, maxVersion, config)
}
