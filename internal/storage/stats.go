package storage

import "sync/atomic"

// accessStatistics counts read attempts and hits for one cache instance.
// Counters are updated lock-free because reads for different packages run
// concurrently.
type accessStatistics struct {
	numReads atomic.Int64
	numHits  atomic.Int64
}

func (s *accessStatistics) recordRead(hit bool) {
	s.numReads.Add(1)
	if hit {
		s.numHits.Add(1)
	}
}

// Stats is a read-only snapshot of a cache's access counters.
type Stats struct {
	NumReads int64 `json:"num_reads"`
	NumHits  int64 `json:"num_hits"`
}

func (s *accessStatistics) snapshot() Stats {
	return Stats{
		NumReads: s.numReads.Load(),
		NumHits:  s.numHits.Load(),
	}
}
