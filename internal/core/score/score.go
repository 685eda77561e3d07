// Package score computes an integer risk score per matched record from
// independent heuristic signals and assigns a tier.
// Score is a pure function of (record, verdict): identical input always
// yields an identical assessment
package score

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"reconfilter/internal/core/match"
)

// Tier is the discrete risk classification derived from a numeric score
type Tier int

// Tiers in ascending severity
const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// Tier thresholds
const (
	tierHighMin   = 15
	tierMediumMin = 8
)

// paramScoreCap bounds the aggregate parameter-sensitivity contribution so
// parameter-stuffed URLs cannot inflate without bound
const paramScoreCap = 30

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// TierOf maps a score to its tier
func TierOf(score int) Tier {
	switch {
	case score >= tierHighMin:
		return TierHigh
	case score >= tierMediumMin:
		return TierMedium
	default:
		return TierLow
	}
}

// Assessment is the scored classification of one record
type Assessment struct {
	Score int
	Tier  Tier
}

// FormatTagged renders a record with its tier tag and numeric score,
// e.g. "[HIGH] [score:24] https://..."
func FormatTagged(line string, a Assessment) string {
	return fmt.Sprintf("[%s] [score:%d] %s", a.Tier, a.Score, strings.TrimRight(line, "\r\n"))
}

// Scorer computes risk assessments. Priority keywords are raised to the
// maximum keyword weight; the signal tables themselves never change
type Scorer struct {
	weights map[string]int
}

// NewScorer builds a Scorer, lifting any priority keywords to weight 10
func NewScorer(priority []string) *Scorer {
	w := make(map[string]int, len(KeywordWeights)+len(priority))
	for k, v := range KeywordWeights {
		w[k] = v
	}
	for _, p := range priority {
		p = strings.ToLower(p)
		if w[p] < 10 {
			w[p] = 10
		}
	}
	return &Scorer{weights: w}
}

// Score sums the independent signal contributions for one record
func (s *Scorer) Score(raw string, v match.Verdict) Assessment {
	total := s.keywordScore(v)
	cls := classify(raw)
	total += structuralScore(raw, cls)
	total += heuristicScore(raw)
	return Assessment{Score: total, Tier: TierOf(total)}
}

// keywordScore weighs the verdict's matched keywords. Fuzzy matches
// (marked "~") contribute 60% of the exact weight, floored at 1
func (s *Scorer) keywordScore(v match.Verdict) int {
	total := 0
	for _, kw := range v.Keywords {
		name, fuzzy := strings.CutSuffix(kw, "~")
		w, ok := s.weights[strings.ToLower(name)]
		if !ok {
			w = 1
		}
		if fuzzy {
			w = max(1, w*6/10)
		}
		total += w
	}
	return total
}

// classify buckets a record as url, path, parameter, or generic
func classify(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.Contains(s, "://") || strings.HasPrefix(s, "www."):
		return "url"
	case strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//"):
		return "path"
	case strings.Contains(s, "=") && (strings.Contains(s, "&") || strings.Contains(s, "?")):
		return "parameter"
	default:
		return "generic"
	}
}

// structuralScore covers extension risk, parameter sensitivity, and path
// depth for url- and path-shaped records
func structuralScore(raw, cls string) int {
	stripped := strings.TrimSpace(raw)
	total := 0

	switch cls {
	case "url":
		target := stripped
		if !strings.Contains(target, "://") {
			target = "http://" + target
		}
		u, err := url.Parse(target)
		if err != nil {
			return 0
		}

		total += extensionRisk(u.Path)
		total += paramScore(u.Query())

		depth := pathDepth(u.Path)
		total += min(depth, 4)

	case "path":
		parts := splitPath(stripped)
		total += min(len(parts), 3)
		if len(parts) > 0 {
			total += extensionRisk(parts[len(parts)-1])
		}
	}
	return total
}

// paramScore sums sensitivity per distinct parameter name, capped
func paramScore(q url.Values) int {
	if len(q) == 0 {
		return 0
	}
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		w, ok := ParamSensitivity[name]
		if !ok {
			w = 1
		}
		total += w
	}
	return min(total, paramScoreCap)
}

// heuristicScore covers known sensitive endpoint patterns. Each family
// contributes at most once
func heuristicScore(raw string) int {
	lower := strings.ToLower(raw)
	total := 0

	for _, p := range adminPatterns {
		if strings.Contains(lower, p) {
			total += 6
			break
		}
	}
	for _, p := range apiPatterns {
		if strings.Contains(lower, p) {
			total += 4
			break
		}
	}
	trimmed := strings.TrimRight(lower, "\r\n")
	for _, ext := range backupExtensions {
		if strings.HasSuffix(trimmed, ext) {
			total += 5
			break
		}
	}
	for _, p := range devPatterns {
		if strings.Contains(lower, p) {
			total += 3
			break
		}
	}
	return total
}

func extensionRisk(segment string) int {
	last := segment
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		last = segment[i+1:]
	}
	dot := strings.LastIndex(last, ".")
	if dot < 0 {
		return 0
	}
	return ExtensionRisk[strings.ToLower(last[dot:])]
}

func pathDepth(path string) int {
	return len(splitPath(path))
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
