package fingerprint

// Normalization pipeline for the normalized dedup scope
// 1 UTF-8 repair drop invalid bytes
// 2 Unicode NFKC normalization
// 3 Case folding
// 4 Remove format chars ZWJ ZWNJ FEFF etc
// 5 Width fold fullwidth to ASCII
// 6 Collapse whitespace to single spaces and trim

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		// order matters and mirrors the documented pipeline
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),                       // unicode case folding
			runes.Remove(runes.In(unicode.Cf)), // strip format chars
			width.Fold,                         // map fullwidth forms to ASCII
		)
	},
}

// Normalize returns the normalized form of s following the pipeline above.
// Records differing only in letter case or surrounding whitespace
// normalize identically
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		ns = strings.ToLower(s)
	}

	return collapseSpaces(ns)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
