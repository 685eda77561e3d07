// Package rules defines the filter rule set and compiles it for matching.
// A Set is plain data handed in by the caller; Compile validates it, folds
// case, applies the safe-mode regex complexity limiter, and produces the
// immutable form the match engine evaluates against
package rules

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	perr "reconfilter/internal/platform/errors"
)

// DefaultKeywords is the built-in high-signal dictionary used when the
// caller supplies no keyword list of its own
var DefaultKeywords = []string{
	"apikey", "api_key", "secret", "credential",
	"password", "passwd", "token", "access_token",
	"auth", "authorization", "admin", "login",
	"private", "internal", "backup", "config",
	"database", "db", "endpoint", "callback",
	"debug", "dev", "staging", "redirect",
	"api", "key",
}

// Set holds one run's filter rules. Zero value means match everything
type Set struct {
	Keywords         []string `validate:"dive,min=1"`
	ExcludeKeywords  []string `validate:"dive,min=1"`
	Pattern          string
	PriorityKeywords []string `validate:"dive,min=1"`

	Fuzzy          bool
	FuzzyThreshold float64 `validate:"gte=0,lte=1"`

	MatchLogic    string `validate:"oneof=and or"`
	CaseSensitive bool
	MinLength     int `validate:"gte=0"`
	MaxLength     int `validate:"gte=0"`
	MinScore      int `validate:"gte=0"`

	// SafeMode rejects regex patterns that trip the complexity heuristic
	SafeMode bool
}

// Default returns a Set carrying the built-in dictionary with fuzzy
// matching off
func Default() Set {
	return Set{
		Keywords:       append([]string(nil), DefaultKeywords...),
		FuzzyThreshold: 0.75,
		MatchLogic:     "or",
	}
}

// Compiled is the validated, case-folded form of a Set
type Compiled struct {
	Regex          *regexp.Regexp
	Keywords       []string
	Exclude        []string
	Priority       map[string]struct{}
	Fuzzy          bool
	FuzzyThreshold float64
	MatchAll       bool // no regex and no keywords configured
	AndLogic       bool
	CaseSensitive  bool
	MinLength      int
	MaxLength      int
	MinScore       int
}

var validate = validator.New()

// Compile validates s and produces the matcher-ready rule set
func (s Set) Compile() (*Compiled, error) {
	if s.MatchLogic == "" {
		s.MatchLogic = "or"
	}
	if s.FuzzyThreshold == 0 {
		s.FuzzyThreshold = 0.75
	}
	if err := validate.Struct(s); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "invalid rule set")
	}
	if s.MaxLength > 0 && s.MaxLength < s.MinLength {
		return nil, perr.Validationf("max length %d below min length %d", s.MaxLength, s.MinLength)
	}

	c := &Compiled{
		Fuzzy:          s.Fuzzy,
		FuzzyThreshold: s.FuzzyThreshold,
		AndLogic:       s.MatchLogic == "and",
		CaseSensitive:  s.CaseSensitive,
		MinLength:      s.MinLength,
		MaxLength:      s.MaxLength,
		MinScore:       s.MinScore,
	}

	if s.Pattern != "" {
		if s.SafeMode {
			if err := checkComplexity(s.Pattern); err != nil {
				return nil, err
			}
		}
		pat := s.Pattern
		if !s.CaseSensitive {
			pat = "(?i)" + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "invalid regex pattern %q", s.Pattern)
		}
		c.Regex = re
	}

	c.Keywords = s.foldAll(s.Keywords)
	c.Exclude = s.foldAll(s.ExcludeKeywords)
	c.Priority = make(map[string]struct{}, len(s.PriorityKeywords))
	for _, kw := range s.PriorityKeywords {
		c.Priority[s.fold(kw)] = struct{}{}
		// priority keywords always participate in matching
		if !containsFold(c.Keywords, s.fold(kw)) {
			c.Keywords = append(c.Keywords, s.fold(kw))
		}
	}

	c.MatchAll = c.Regex == nil && len(c.Keywords) == 0
	return c, nil
}

func (s Set) fold(v string) string {
	if s.CaseSensitive {
		return v
	}
	return strings.ToLower(v)
}

// foldAll case-folds and drops empty or repeated entries; the matcher's
// and-logic counts distinct keywords, so the compiled list holds each at
// most once
func (s Set) foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		f := s.fold(v)
		if !containsFold(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func containsFold(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// checkComplexity is the safe-mode heuristic blocking patterns whose
// quantifier density suggests pathological behavior
func checkComplexity(pattern string) error {
	if strings.Contains(pattern, "(.*") ||
		strings.Count(pattern, "*") > 3 ||
		strings.Count(pattern, "+") > 3 {
		return perr.Validationf("regex pattern %q violates safe mode complexity limits", pattern)
	}
	return nil
}
