// Package audit appends JSONL execution records for each processed file.
// JSON Lines keeps appends cheap and avoids re-parsing a growing array
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	perr "reconfilter/internal/platform/errors"
)

// RuleSummary captures the rule configuration a run executed with
type RuleSummary struct {
	Keywords    int    `json:"keywords"`
	Regex       string `json:"regex,omitempty"`
	Fuzzy       bool   `json:"fuzzy"`
	Intelligent bool   `json:"intelligent"`
}

// Entry is one audit record
type Entry struct {
	RunID      string      `json:"run_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Target     string      `json:"target"`
	Outcome    string      `json:"outcome"`
	Matches    int         `json:"matches"`
	Suppressed int64       `json:"suppressed"`
	InputHash  string      `json:"input_hash,omitempty"`
	Rules      RuleSummary `json:"rules"`
}

// Log appends entries to one audit file. Safe for concurrent use
type Log struct {
	path string
	mu   sync.Mutex
}

// Open prepares the audit log at path, creating parent directories
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWrite, "audit dir for %s", path)
	}
	return &Log{path: path}, nil
}

// Append writes one entry as a single JSON line
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeWrite, "encode audit entry")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWrite, "open audit log %s", l.path)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWrite, "append audit log %s", l.path)
	}
	return nil
}
