// Package engine orchestrates the streaming filter pipeline:
// cache check, record source, dedup gate, match engine, risk scorer, and
// atomic writer, across files under a governor-sized worker pool.
// Concurrency is across files; records within one file are processed in
// source order, so output order is deterministic regardless of worker
// count
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"reconfilter/internal/core/fingerprint"
	"reconfilter/internal/core/match"
	"reconfilter/internal/core/rules"
	"reconfilter/internal/core/score"
	"reconfilter/internal/core/version"
	"reconfilter/internal/engine/audit"
	"reconfilter/internal/engine/cache"
	"reconfilter/internal/engine/dedupe"
	"reconfilter/internal/engine/governor"
	"reconfilter/internal/engine/source"
	"reconfilter/internal/engine/writer"
	perr "reconfilter/internal/platform/errors"
	"reconfilter/internal/platform/logger"
)

// cacheCaveat is surfaced on every cached run; see the cache package
const cacheCaveat = "cache skips are keyed by file content only; " +
	"rule set changes do not invalidate previously processed files"

// Task names one input file, its declared format, and where its filtered
// output goes. An empty Format auto-detects from the extension; an empty
// Output derives "<stem>_filtered<ext>" beside the input
type Task struct {
	Path   string `validate:"required"`
	Format source.Format
	Output string
}

// Options configures one engine instance. Rule sets and budgets are
// passed in explicitly so concurrent runs with different settings never
// interfere
type Options struct {
	Rules rules.Set

	// Intelligent scores every record and emits those at or above the
	// risk threshold; otherwise only rule matches are emitted
	Intelligent   bool
	Annotate      bool // prefix emitted text lines with "[TIER] [score:N]"
	RiskThreshold int  `validate:"gte=0"`

	Dedupe      bool
	DedupeScope fingerprint.Scope

	CacheEnabled bool
	CachePath    string

	AuditPath string

	// OutputRoot confines all output targets when non-empty
	OutputRoot string

	// Workers overrides the governor's plan when positive
	Workers    int `validate:"gte=0"`
	MatchLimit int `validate:"gte=0"`

	RegexTimeout time.Duration

	Footer    bool
	Backup    bool
	BackupDir string
}

// Engine runs the pipeline. Build one per rule configuration; Run may be
// called once per batch of files
type Engine struct {
	opts    Options
	rs      *rules.Compiled
	matcher *match.Engine
	scorer  *score.Scorer
	cache   *cache.Store
	audit   *audit.Log
	log     logger.Logger
}

var validate = validator.New()

// New validates opts, compiles the rule set, and opens the cache and
// audit stores the options ask for
func New(opts Options) (*Engine, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "invalid engine options")
	}

	rs, err := opts.Rules.Compile()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:    opts,
		rs:      rs,
		matcher: match.New(rs, opts.RegexTimeout),
		scorer:  score.NewScorer(opts.Rules.PriorityKeywords),
		log:     logger.With("engine"),
	}

	if opts.CacheEnabled {
		st, err := cache.Open(opts.CachePath)
		if err != nil {
			return nil, err
		}
		e.cache = st
	}
	if opts.AuditPath != "" {
		al, err := audit.Open(opts.AuditPath)
		if err != nil {
			return nil, err
		}
		e.audit = al
	}
	return e, nil
}

// Run processes tasks under a bounded worker pool and returns the
// structured run result. Errors never escape per-file processing; the
// returned error covers run-level problems only (invalid tasks,
// conflicting output targets)
func (e *Engine) Run(ctx context.Context, tasks []Task) (*Result, error) {
	started := time.Now()

	if len(tasks) == 0 {
		return nil, perr.Validationf("no input files")
	}
	seen := make(map[string]string, len(tasks))
	var totalSize int64
	for i := range tasks {
		if err := validate.Struct(tasks[i]); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeValidation, "invalid task")
		}
		out := e.outputFor(tasks[i])
		if prev, dup := seen[out]; dup {
			return nil, perr.Validationf("output %s targeted by both %s and %s", out, prev, tasks[i].Path)
		}
		seen[out] = tasks[i].Path
		if fi, err := os.Stat(tasks[i].Path); err == nil {
			totalSize += fi.Size()
		}
	}

	budget := governor.Plan(totalSize)
	if e.opts.Workers > 0 {
		budget.MaxWorkers = e.opts.Workers
	}

	res := &Result{
		RunID:  uuid.NewString(),
		Files:  make([]FileResult, len(tasks)),
		Budget: budget,
	}
	if e.opts.CacheEnabled {
		res.CacheCaveat = cacheCaveat
	}

	e.log.Info().
		Str("run_id", res.RunID).
		Int("files", len(tasks)).
		Int("workers", budget.MaxWorkers).
		Bool("force_streaming", budget.ForceStreaming).
		Msg("run started")

	deduper := dedupe.New()
	sem := make(chan struct{}, budget.MaxWorkers)
	wg := sync.WaitGroup{}

	for i := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			res.Files[i] = e.processFile(ctx, tasks[i], deduper, budget)
		}(i)
	}
	wg.Wait()

	res.Canceled = ctx.Err() != nil
	res.tally()
	res.Duration = time.Since(started)

	if e.audit != nil {
		for i := range res.Files {
			f := &res.Files[i]
			entry := audit.Entry{
				RunID:      res.RunID,
				Target:     f.Path,
				Outcome:    string(f.Outcome),
				Matches:    f.Matched,
				Suppressed: f.Suppressed,
				InputHash:  f.Fingerprint,
				Rules: audit.RuleSummary{
					Keywords:    len(e.opts.Rules.Keywords),
					Regex:       e.opts.Rules.Pattern,
					Fuzzy:       e.opts.Rules.Fuzzy,
					Intelligent: e.opts.Intelligent,
				},
			}
			if err := e.audit.Append(entry); err != nil {
				e.log.Warn().Err(err).Str("target", f.Path).Msg("audit append failed")
			}
		}
	}

	e.log.Info().
		Str("run_id", res.RunID).
		Int("succeeded", res.Succeeded).
		Int("partial", res.Partial).
		Int("failed", res.Failed).
		Int("cache_skips", res.SkippedByCache).
		Bool("canceled", res.Canceled).
		Dur("took", res.Duration).
		Msg("run finished")

	return res, nil
}

// processFile runs the full per-file lifecycle. It never panics past its
// frame and maps every failure to a per-file outcome
func (e *Engine) processFile(ctx context.Context, t Task, deduper *dedupe.Filter, budget governor.Budget) FileResult {
	started := time.Now()
	fr := FileResult{Path: t.Path}
	defer func() { fr.Duration = time.Since(started) }()

	fp, err := fingerprint.File(t.Path)
	if err != nil {
		return e.fail(fr, err)
	}
	fr.Fingerprint = fp

	if e.cache != nil && e.cache.ShouldSkip(fp) {
		fr.SkippedByCache = true
		fr.Outcome = perr.OutcomeSucceeded
		e.log.Debug().Str("file", t.Path).Msg("unchanged, skipped via cache")
		return fr
	}

	format := t.Format
	if format == "" {
		format = source.DetectFormat(t.Path)
	}

	src, err := source.Open(t.Path, format)
	if err != nil {
		return e.fail(fr, err)
	}
	defer src.Close()

	fr.Output = e.outputFor(t)
	w, err := writer.Open(fr.Output, format, src.Header(), writer.Options{
		Root:      e.opts.OutputRoot,
		Backup:    e.opts.Backup,
		BackupDir: e.opts.BackupDir,
		FlushEach: budget.ForceStreaming,
	})
	if err != nil {
		return e.fail(fr, err)
	}
	defer w.Abort()

	var terminalErr error

loop:
	for {
		select {
		case <-ctx.Done():
			terminalErr = perr.Wrap(ctx.Err(), perr.ErrorCodeCanceled, "run interrupted")
			break loop
		default:
		}

		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// terminal stream error past the first record; keep what we have
			fr.Skipped++
			terminalErr = err
			break
		}
		fr.Scanned++

		emit, line := e.evaluate(rec, format, &fr)
		if !emit {
			continue
		}

		if e.opts.Dedupe {
			if !deduper.Admit(fingerprint.Record(e.opts.DedupeScope, rec.Raw)) {
				fr.Suppressed++
				continue
			}
		}

		if err := w.Write(line, rec.Fields); err != nil {
			return e.fail(fr, err)
		}
		fr.Matched++

		if e.opts.MatchLimit > 0 && fr.Matched >= e.opts.MatchLimit {
			break
		}
	}
	fr.Skipped += src.Skipped()

	if terminalErr != nil && perr.IsCode(terminalErr, perr.ErrorCodeCanceled) {
		// abort the write scope: the original target stays untouched
		w.Abort()
		fr.Outcome = perr.OutcomePartial
		fr.Err = terminalErr.Error()
		return fr
	}

	if err := w.Commit(e.footer(format, &fr)...); err != nil {
		return e.fail(fr, err)
	}

	if e.cache != nil && terminalErr == nil {
		if err := e.cache.MarkProcessed(fp); err != nil {
			e.log.Warn().Err(err).Str("file", t.Path).Msg("cache update failed")
		}
	}

	switch {
	case terminalErr != nil:
		fr.Outcome = perr.OutcomePartial
		fr.Err = terminalErr.Error()
	case fr.Skipped > 0 || fr.RegexTimeouts > 0:
		fr.Outcome = perr.OutcomePartial
	default:
		fr.Outcome = perr.OutcomeSucceeded
	}
	return fr
}

// evaluate applies match and scoring rules to one record and renders its
// output line
func (e *Engine) evaluate(rec source.Record, format source.Format, fr *FileResult) (emit bool, line string) {
	v := e.matcher.Evaluate(rec.Raw)
	if v.TimedOut {
		fr.RegexTimeouts++
		e.log.Debug().Str("file", rec.File).Int("record", rec.Index).Msg("regex evaluation timed out")
	}

	line = rec.Raw

	if !e.opts.Intelligent {
		if !v.Matched {
			return false, line
		}
		// classic mode still honors a minimum score: matched records are
		// scored only when a floor is configured
		if e.rs.MinScore > 0 && e.scorer.Score(rec.Raw, v).Score < e.rs.MinScore {
			return false, line
		}
		return true, line
	}
	if v.Excluded {
		return false, line
	}

	a := e.scorer.Score(rec.Raw, v)
	threshold := e.opts.RiskThreshold
	if e.rs.MinScore > threshold {
		threshold = e.rs.MinScore
	}
	if a.Score < threshold {
		return false, line
	}

	switch a.Tier {
	case score.TierHigh:
		fr.Tiers.High++
	case score.TierMedium:
		fr.Tiers.Medium++
	default:
		fr.Tiers.Low++
	}

	// annotation is text-shaped only; JSON and CSV outputs stay
	// structurally intact
	if e.opts.Annotate && format != source.FormatJSON && format != source.FormatCSV {
		line = score.FormatTagged(rec.Raw, a)
	}
	return true, line
}

func (e *Engine) fail(fr FileResult, err error) FileResult {
	fr.Outcome = perr.OutcomeOf(err)
	fr.Err = err.Error()
	e.log.Error().Err(err).Str("file", fr.Path).Str("outcome", string(fr.Outcome)).Msg("file processing failed")
	return fr
}

// outputFor derives the target path for a task
func (e *Engine) outputFor(t Task) string {
	if t.Output != "" {
		return t.Output
	}
	ext := filepath.Ext(t.Path)
	if ext == "" {
		ext = ".txt"
	}
	stem := strings.TrimSuffix(filepath.Base(t.Path), ext)
	return filepath.Join(filepath.Dir(t.Path), stem+"_filtered"+ext)
}

// footer builds the trailer appended to text-shaped outputs
func (e *Engine) footer(format source.Format, fr *FileResult) []string {
	if !e.opts.Footer || fr.Matched == 0 {
		return nil
	}
	if format == source.FormatJSON || format == source.FormatCSV {
		return nil
	}
	bi := version.Info()
	return []string{
		"",
		fmt.Sprintf("Processed by %s %s", bi.Tool, bi.Version),
		fmt.Sprintf("Total matches: %d", fr.Matched),
		fmt.Sprintf("Suppressed duplicates: %d", fr.Suppressed),
		fmt.Sprintf("Generated at: %s", time.Now().UTC().Format("2006-01-02T15:04:05Z")),
	}
}
