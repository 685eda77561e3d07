// Package source provides format-specific lazy record readers.
// A Source yields a forward-only, single-pass sequence of records and never
// holds more than a bounded window of the input in memory. Malformed
// records inside a stream are skipped and counted; a stream whose start
// cannot be parsed at all fails the whole file with a format error
package source

import (
	"path/filepath"
	"strings"

	perr "reconfilter/internal/platform/errors"
)

// Format declares how an input file is parsed
type Format string

// Supported input formats
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ParseFormat parses a format name; "auto" and "" defer to DetectFormat
// at open time
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "text", "txt", "log":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", perr.Validationf("unknown input format %q", s)
	}
}

// DetectFormat maps a file extension to its format, defaulting to text
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".pdf":
		return FormatPDF
	default:
		return FormatText
	}
}

// Record is one normalized unit of input. Immutable once produced
type Record struct {
	Raw    string
	Fields []string // CSV only; nil for other formats
	File   string
	Index  int // 1-based line number or element index
}

// Source is a lazy, finite, non-restartable record stream.
// Next returns io.EOF when the stream ends
type Source interface {
	Next() (Record, error)
	Header() []string // CSV header row; nil for other formats
	Skipped() int     // malformed records dropped so far
	Close() error
}

// Open opens path with the declared format; an empty format auto-detects
// from the extension
func Open(path string, f Format) (Source, error) {
	if f == "" {
		f = DetectFormat(path)
	}
	switch f {
	case FormatJSON:
		return openJSON(path)
	case FormatCSV:
		return openCSV(path)
	case FormatPDF:
		return openPDF(path)
	default:
		return openText(path)
	}
}
