package storage

import (
	log "github.com/sirupsen/logrus"

	"github.com/yourorg/scanstore/internal/model"
)

// dedupKey identifies a stored entry by the fields that determine its
// content: the exact source scanned and the exact scanner that scanned it.
func dedupKey(r model.ScanResult) string {
	return model.ProvenanceKey(r.Provenance) + "|" + r.Scanner.Key()
}

// Deduplicate removes redundant entries sharing the same (provenance,
// scanner) identity, as produced by concurrent scan/write cycles. The first
// occurrence wins and input order is preserved, so applying it twice yields
// the same set as applying it once.
func Deduplicate(results []model.ScanResult) []model.ScanResult {
	if len(results) < 2 {
		return results
	}
	seen := make(map[string]struct{}, len(results))
	unique := make([]model.ScanResult, 0, len(results))
	for _, r := range results {
		key := dedupKey(r)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, r)
	}
	if removed := len(results) - len(unique); removed > 0 {
		log.Debugf("deduplication removed %d of %d scan results", removed, len(results))
	}
	return unique
}
