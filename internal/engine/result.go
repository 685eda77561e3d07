package engine

import (
	"time"

	"reconfilter/internal/engine/governor"
	perr "reconfilter/internal/platform/errors"
)

// TierCounts tallies emitted records per risk tier
type TierCounts struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// FileResult is the per-file outcome reported past the engine boundary
type FileResult struct {
	Path   string `json:"path"`
	Output string `json:"output,omitempty"`

	Outcome perr.Outcome `json:"outcome"`
	Err     string       `json:"error,omitempty"`

	Scanned       int   `json:"scanned"`
	Matched       int   `json:"matched"`
	Suppressed    int64 `json:"suppressed"`
	Skipped       int   `json:"skipped"` // malformed records dropped
	RegexTimeouts int   `json:"regex_timeouts"`

	Tiers TierCounts `json:"tiers"`

	SkippedByCache bool   `json:"skipped_by_cache"`
	Fingerprint    string `json:"fingerprint,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Result is the structured run summary handed to the reporting layer
type Result struct {
	RunID string       `json:"run_id"`
	Files []FileResult `json:"files"`

	Succeeded      int `json:"succeeded"`
	Partial        int `json:"partial"`
	Failed         int `json:"failed"`
	SkippedByCache int `json:"skipped_by_cache"`

	Canceled bool `json:"canceled"`

	// CacheCaveat flags the documented staleness hazard whenever caching
	// was active for the run
	CacheCaveat string `json:"cache_caveat,omitempty"`

	Budget   governor.Budget `json:"budget"`
	Duration time.Duration   `json:"duration"`
}

func (r *Result) tally() {
	r.Succeeded, r.Partial, r.Failed, r.SkippedByCache = 0, 0, 0, 0
	for i := range r.Files {
		f := &r.Files[i]
		if f.SkippedByCache {
			r.SkippedByCache++
		}
		switch f.Outcome {
		case perr.OutcomeSucceeded:
			r.Succeeded++
		case perr.OutcomePartial:
			r.Partial++
		case perr.OutcomeFailed:
			r.Failed++
		}
	}
}
