// Package match evaluates records against a compiled rule set.
// Modes run in a fixed precedence order: explicit regex, exact keyword
// containment, then fuzzy similarity when enabled. Fuzzy work is skipped
// once an earlier mode has already matched
package match

import (
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"reconfilter/internal/core/rules"
)

// Verdict is the outcome of evaluating one record
type Verdict struct {
	Matched  bool
	Keywords []string // matched keywords; fuzzy matches carry a "~" suffix
	Fuzzy    float64  // best similarity ratio observed in [0,1]
	TimedOut bool     // regex evaluation exceeded its budget
	Excluded bool     // rejected by a negative keyword
}

// Engine evaluates records against one compiled rule set.
// Safe for concurrent use; it holds no mutable state
type Engine struct {
	rs      *rules.Compiled
	timeout time.Duration
}

// New builds an Engine. regexTimeout bounds a single pattern evaluation;
// zero disables the time box
func New(rs *rules.Compiled, regexTimeout time.Duration) *Engine {
	return &Engine{rs: rs, timeout: regexTimeout}
}

// Evaluate produces the match verdict for one raw record
func (e *Engine) Evaluate(raw string) Verdict {
	var v Verdict
	target := raw
	if !e.rs.CaseSensitive {
		target = strings.ToLower(raw)
	}

	for _, neg := range e.rs.Exclude {
		if strings.Contains(target, neg) {
			v.Excluded = true
			return v
		}
	}

	if e.rs.MinLength > 0 && len(raw) < e.rs.MinLength {
		return v
	}
	if e.rs.MaxLength > 0 && len(raw) > e.rs.MaxLength {
		return v
	}

	if e.rs.MatchAll {
		v.Matched = true
		return v
	}

	regexMatched := false
	if e.rs.Regex != nil {
		regexMatched, v.TimedOut = e.regexMatch(raw)
	}

	var kwMatched map[string]struct{}
	if len(e.rs.Keywords) > 0 {
		kwMatched = e.scanKeywords(target, &v)
		if e.rs.Fuzzy && !regexMatched && !e.keywordsSatisfied(kwMatched) {
			e.scanFuzzy(target, kwMatched, &v)
		}
	}
	keywordMatched := e.keywordsSatisfied(kwMatched)

	hasRegex := e.rs.Regex != nil
	hasKeywords := len(e.rs.Keywords) > 0
	switch {
	case e.rs.AndLogic && hasRegex && hasKeywords:
		v.Matched = regexMatched && keywordMatched
	case hasRegex && !hasKeywords:
		v.Matched = regexMatched
	case hasKeywords && !hasRegex:
		v.Matched = keywordMatched
	default:
		v.Matched = regexMatched || keywordMatched
	}
	return v
}

// scanKeywords collects exact containment matches into v and returns the
// set of keywords matched so far
func (e *Engine) scanKeywords(target string, v *Verdict) map[string]struct{} {
	matched := make(map[string]struct{}, len(e.rs.Keywords))
	for _, kw := range e.rs.Keywords {
		if strings.Contains(target, kw) {
			matched[kw] = struct{}{}
			v.Keywords = append(v.Keywords, kw)
		}
	}
	return matched
}

// scanFuzzy compares each still-unmatched keyword against each record
// token, counting a keyword as matched at similarity >= the configured
// threshold. Keywords the exact scan already collected are skipped so a
// keyword never appears twice in the verdict. Priority keywords count at
// full weight (no "~" marker), everything else is annotated as approximate
func (e *Engine) scanFuzzy(target string, matched map[string]struct{}, v *Verdict) {
	tokens := tokenize(target)
	if len(tokens) == 0 {
		return
	}
	for _, kw := range e.rs.Keywords {
		if _, done := matched[kw]; done {
			continue
		}
		best := 0.0
		for _, tok := range tokens {
			if sim := levenshtein.Similarity(kw, tok, nil); sim > best {
				best = sim
			}
		}
		if best > v.Fuzzy {
			v.Fuzzy = best
		}
		if best < e.rs.FuzzyThreshold {
			continue
		}
		matched[kw] = struct{}{}
		if _, prio := e.rs.Priority[kw]; prio {
			v.Keywords = append(v.Keywords, kw)
		} else {
			v.Keywords = append(v.Keywords, kw+"~")
		}
	}
}

// keywordsSatisfied reports whether the configured logic holds for the
// keywords matched so far, exactly or fuzzily: and-logic needs every
// keyword, or-logic needs at least one
func (e *Engine) keywordsSatisfied(matched map[string]struct{}) bool {
	if len(e.rs.Keywords) == 0 {
		return false
	}
	if e.rs.AndLogic {
		return len(matched) == len(e.rs.Keywords)
	}
	return len(matched) > 0
}

// regexMatch runs the compiled pattern under the configured time budget.
// Go regexps are linear time, so the budget is a guard against extreme
// inputs rather than backtracking; an overrun counts as no match
func (e *Engine) regexMatch(raw string) (matched, timedOut bool) {
	if e.timeout <= 0 {
		return e.rs.Regex.MatchString(raw), false
	}
	done := make(chan bool, 1)
	go func() { done <- e.rs.Regex.MatchString(raw) }()
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case m := <-done:
		return m, false
	case <-timer.C:
		return false, true
	}
}

var tokenSplitter = strings.NewReplacer("/", " ", "?", " ", "&", " ", "=", " ")

// tokenize splits URL-ish separators into whitespace and drops sub-2-byte
// tokens, mirroring how fuzzy candidates are extracted from recon lines
func tokenize(s string) []string {
	fields := strings.Fields(tokenSplitter.Replace(s))
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
