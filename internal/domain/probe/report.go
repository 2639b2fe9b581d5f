package probe

import (
	"sort"
	"time"
)

// Report is the aggregated outcome of one scan. Only the orchestrator builds it.
type Report struct {
	ID           string            `json:"id"`
	Target       string            `json:"target"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Duration     float64           `json:"duration_seconds"`
	CacheEnabled bool              `json:"cache_enabled"`
	Results      map[string]Result `json:"results"`
}

// ProbeNames returns the result keys in lexical order.
func (r *Report) ProbeNames() []string {
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusCounts tallies results by status.
func (r *Report) StatusCounts() map[Status]int {
	counts := map[Status]int{
		StatusSuccess: 0,
		StatusPartial: 0,
		StatusFailed:  0,
	}
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// SeverityCounts tallies findings across all results.
func (r *Report) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int)
	for _, res := range r.Results {
		for _, f := range res.Findings {
			counts[f.Severity]++
		}
	}
	return counts
}

// Healthy is true when every probe succeeded.
func (r *Report) Healthy() bool {
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			return false
		}
	}
	return true
}
