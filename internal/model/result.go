package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScannerDetails identifies the tool that produced a scan result. The
// configuration string must capture every option that can change the tool's
// output, because stored results are only reused on an exact match.
type ScannerDetails struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Configuration string `json:"configuration"`
}

func (d ScannerDetails) String() string {
	if d.Configuration == "" {
		return fmt.Sprintf("%s %s", d.Name, d.Version)
	}
	return fmt.Sprintf("%s %s (%s)", d.Name, d.Version, d.Configuration)
}

// Key returns the canonical identity string of the scanner details.
func (d ScannerDetails) Key() string {
	return strings.Join([]string{d.Name, d.Version, d.Configuration}, "|")
}

type TextLocation struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type LicenseFinding struct {
	License  string       `json:"license"`
	Location TextLocation `json:"location"`
}

type CopyrightFinding struct {
	Statement string       `json:"statement"`
	Location  TextLocation `json:"location"`
}

type Severity string

const (
	SeverityHint    Severity = "hint"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue records a problem encountered while scanning. Path is empty for
// issues not tied to a particular file.
type Issue struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Path      string    `json:"path"`
}

// ScanSummary aggregates the findings of a single scanner run.
type ScanSummary struct {
	StartTime         time.Time          `json:"start_time"`
	EndTime           time.Time          `json:"end_time"`
	FileCount         int                `json:"file_count"`
	LicenseFindings   []LicenseFinding   `json:"license_findings"`
	CopyrightFindings []CopyrightFinding `json:"copyright_findings"`
	Issues            []Issue            `json:"issues"`
}

// ScanResult ties a scanner run to the exact source it inspected.
type ScanResult struct {
	Provenance Provenance
	Scanner    ScannerDetails
	Summary    ScanSummary
}

// CheckPersistable reports why a result must not be stored, or nil if it may
// be. Results without scanned files carry no reusable information, and
// results without a known source cannot be matched against anything later.
func (r ScanResult) CheckPersistable() error {
	switch p := r.Provenance.(type) {
	case nil, UnknownProvenance:
		return fmt.Errorf("scan result of %s has unknown provenance", r.Scanner)
	case RepositoryProvenance:
		if !p.IsResolved() {
			return fmt.Errorf("scan result of %s has an unresolved revision", r.Scanner)
		}
	}
	if r.Summary.FileCount == 0 {
		return fmt.Errorf("scan result of %s has no scanned files", r.Scanner)
	}
	return nil
}

// scanResultJSON is the wire form of ScanResult; the provenance field uses
// the tagged envelope from MarshalProvenance.
type scanResultJSON struct {
	Provenance json.RawMessage `json:"provenance"`
	Scanner    ScannerDetails  `json:"scanner"`
	Summary    ScanSummary     `json:"summary"`
}

func (r ScanResult) MarshalJSON() ([]byte, error) {
	prov, err := MarshalProvenance(r.Provenance)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scanResultJSON{
		Provenance: prov,
		Scanner:    r.Scanner,
		Summary:    r.Summary,
	})
}

func (r *ScanResult) UnmarshalJSON(data []byte) error {
	var wire scanResultJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	prov := Provenance(UnknownProvenance{})
	if len(wire.Provenance) > 0 {
		p, err := UnmarshalProvenance(wire.Provenance)
		if err != nil {
			return err
		}
		prov = p
	}
	r.Provenance = prov
	r.Scanner = wire.Scanner
	r.Summary = wire.Summary
	return nil
}
