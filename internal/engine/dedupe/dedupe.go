// Package dedupe suppresses records already emitted under the active
// dedup scope within one run. Cross-run suppression is the cache store's
// job, not this filter's
package dedupe

import (
	"sync"

	"reconfilter/internal/core/fingerprint"
)

// Filter is an in-memory fingerprint set shared by all workers of a run
type Filter struct {
	mu         sync.Mutex
	seen       map[fingerprint.Digest]struct{}
	suppressed int64
}

// New builds an empty Filter
func New() *Filter {
	return &Filter{seen: make(map[fingerprint.Digest]struct{})}
}

// Admit records d and reports whether this is its first occurrence.
// First occurrences are always emitted; repeats are counted and suppressed
func (f *Filter) Admit(d fingerprint.Digest) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[d]; dup {
		f.suppressed++
		return false
	}
	f.seen[d] = struct{}{}
	return true
}

// Suppressed returns how many repeats were dropped so far
func (f *Filter) Suppressed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed
}

// Size returns the number of distinct fingerprints seen
func (f *Filter) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
