// Command reconfilter filters recon/log datasets through the risk
// intelligence engine. It is a thin front end: flags in, engine run,
// summary out; exit-code mapping happens here, never inside the engine
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reconfilter/internal/core/fingerprint"
	"reconfilter/internal/core/rules"
	"reconfilter/internal/core/version"
	"reconfilter/internal/engine"
	"reconfilter/internal/engine/cache"
	"reconfilter/internal/engine/source"
	"reconfilter/internal/platform/config"
	"reconfilter/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.FromEnv())
	l := logger.With("cli")

	cfg := config.New().Prefix("FILTER_")

	var (
		formatStr   = flag.String("format", "auto", "input format: auto|text|json|csv|pdf")
		outDir      = flag.String("out-dir", "", "directory for filtered outputs (default: beside each input)")
		keywordsStr = flag.String("keywords", "", "comma-separated keywords (default: built-in dictionary)")
		excludeStr  = flag.String("exclude", "", "comma-separated negative keywords")
		pattern     = flag.String("regex", "", "regex pattern")
		priorityStr = flag.String("priority", "", "comma-separated priority keywords (always weight 10)")
		caseSens    = flag.Bool("case-sensitive", false, "case sensitive matching")
		logic       = flag.String("logic", "or", "keyword match logic: and|or")
		safeMode    = flag.Bool("safe-mode", false, "reject regex patterns over the complexity limit")
		minScore    = flag.Int("min-score", 0, "minimum risk score for matched records (0 = disabled)")

		fuzzy     = flag.Bool("fuzzy", false, "enable fuzzy keyword matching")
		fuzzyThr  = flag.Float64("fuzzy-threshold", cfg.MayFloat64("FUZZY_THRESHOLD", 0.75), "fuzzy similarity threshold [0,1]")
		smart     = flag.Bool("intelligent", false, "score every record and tag risk tiers")
		noTag     = flag.Bool("no-tag", false, "suppress [TIER] [score:N] prefixes in intelligent mode")
		riskThr   = flag.Int("risk-threshold", cfg.MayInt("RISK_THRESHOLD", 0), "minimum risk score to emit in intelligent mode")
		dedupe    = flag.Bool("dedupe", false, "suppress duplicate records")
		scopeStr  = flag.String("dedupe-scope", "line", "dedup scope: line|normalized|url-normalized")
		useCache  = flag.Bool("cache", false, "skip files whose content was already processed")
		cachePath = flag.String("cache-path", cfg.MayString("CACHE_PATH", cache.DefaultPath), "cache state file")

		workers    = flag.Int("workers", cfg.MayInt("WORKERS", 0), "worker count (0 = governor decides)")
		matchLimit = flag.Int("match-limit", 0, "stop after N matches per file (0 = unlimited)")
		regexBox   = flag.Duration("regex-timeout", cfg.MayDuration("REGEX_TIMEOUT", 250*time.Millisecond), "per-record regex budget")

		noFooter  = flag.Bool("no-footer", false, "omit the trailer on text outputs")
		backup    = flag.Bool("backup", false, "back up existing outputs before replacing them")
		backupDir = flag.String("backup-dir", "", "directory for .bak copies")
		auditPath = flag.String("audit", cfg.MayString("AUDIT_PATH", ""), "append JSONL audit entries to this file")
		showVer   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		bi := version.Info()
		fmt.Printf("%s %s (%s, %s)\n", bi.Tool, bi.Version, bi.Commit, bi.Date)
		return
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: reconfilter [flags] FILE...")
		flag.PrintDefaults()
		os.Exit(64)
	}

	format, err := source.ParseFormat(*formatStr)
	if err != nil {
		l.Fatal().Err(err).Msg("bad -format")
	}
	scope, err := fingerprint.ParseScope(*scopeStr)
	if err != nil {
		l.Fatal().Err(err).Msg("bad -dedupe-scope")
	}

	set := rules.Set{
		Keywords:         splitList(*keywordsStr),
		ExcludeKeywords:  splitList(*excludeStr),
		Pattern:          *pattern,
		PriorityKeywords: splitList(*priorityStr),
		Fuzzy:            *fuzzy,
		FuzzyThreshold:   *fuzzyThr,
		MatchLogic:       *logic,
		CaseSensitive:    *caseSens,
		MinScore:         *minScore,
		SafeMode:         *safeMode,
	}
	if len(set.Keywords) == 0 && set.Pattern == "" && *smart {
		set.Keywords = append([]string(nil), rules.DefaultKeywords...)
	}

	eng, err := engine.New(engine.Options{
		Rules:         set,
		Intelligent:   *smart,
		Annotate:      *smart && !*noTag,
		RiskThreshold: *riskThr,
		Dedupe:        *dedupe,
		DedupeScope:   scope,
		CacheEnabled:  *useCache,
		CachePath:     *cachePath,
		AuditPath:     *auditPath,
		OutputRoot:    *outDir,
		Workers:       *workers,
		MatchLimit:    *matchLimit,
		RegexTimeout:  *regexBox,
		Footer:        !*noFooter,
		Backup:        *backup,
		BackupDir:     *backupDir,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("engine setup failed")
	}

	tasks := make([]engine.Task, 0, len(inputs))
	for _, in := range inputs {
		t := engine.Task{Path: in, Format: format}
		if *outDir != "" {
			t.Output = outputInDir(in, *outDir)
		}
		tasks = append(tasks, t)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := eng.Run(ctx, tasks)
	if err != nil {
		l.Fatal().Err(err).Msg("run failed")
	}

	for _, f := range res.Files {
		ev := l.Info()
		if f.Outcome != "succeeded" {
			ev = l.Warn()
		}
		ev.Str("file", f.Path).
			Str("outcome", string(f.Outcome)).
			Int("scanned", f.Scanned).
			Int("matched", f.Matched).
			Int64("suppressed", f.Suppressed).
			Bool("cache_skip", f.SkippedByCache).
			Msg("file done")
	}
	if res.CacheCaveat != "" {
		l.Info().Msg(res.CacheCaveat)
	}
	l.Info().
		Int("succeeded", res.Succeeded).
		Int("partial", res.Partial).
		Int("failed", res.Failed).
		Bool("canceled", res.Canceled).
		Dur("took", res.Duration).
		Msg("run complete")

	switch {
	case res.Failed > 0:
		os.Exit(1)
	case res.Partial > 0 || res.Canceled:
		os.Exit(2)
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func outputInDir(input, dir string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".txt"
	}
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"_filtered"+ext)
}
