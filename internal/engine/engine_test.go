package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reconfilter/internal/core/fingerprint"
	"reconfilter/internal/core/rules"
	perr "reconfilter/internal/platform/errors"
)

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func mustEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	if err != nil {
		t.Fatalf("engine setup: %v", err)
	}
	return e
}

func readOut(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read output %s: %v", p, err)
	}
	return string(b)
}

func TestRunClassicKeywordFilter(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "scan.txt",
		"https://target.example/admin/panel\n"+
			"https://target.example/about.html\n"+
			"https://target.example/login?password=1\n")

	e := mustEngine(t, Options{
		Rules:  rules.Set{Keywords: []string{"admin", "password"}},
		Footer: false,
	})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	f := res.Files[0]
	if f.Scanned != 3 || f.Matched != 2 {
		t.Fatalf("scanned=%d matched=%d, want 3/2", f.Scanned, f.Matched)
	}
	want := "https://target.example/admin/panel\nhttps://target.example/login?password=1\n"
	if got := readOut(t, f.Output); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunDerivesOutputName(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "hosts.txt", "admin\n")

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := filepath.Join(dir, "hosts_filtered.txt")
	if res.Files[0].Output != want {
		t.Fatalf("output = %q, want %q", res.Files[0].Output, want)
	}
}

func TestRunClassicMinScore(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "urls.txt",
		"https://t.example/admin/config.php?password=1\n"+
			"https://t.example/about.html\n")

	// both lines match a keyword, only the first clears the score floor
	e := mustEngine(t, Options{
		Rules: rules.Set{Keywords: []string{"admin", "about"}, MinScore: 10},
	})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	f := res.Files[0]
	if f.Matched != 1 {
		t.Fatalf("min score must filter low-scoring matches in classic mode, matched=%d", f.Matched)
	}
	out := readOut(t, f.Output)
	if !strings.Contains(out, "admin/config.php") || strings.Contains(out, "about.html") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "[score:") {
		t.Fatalf("classic mode never annotates:\n%s", out)
	}
}

func TestRunIntelligentTagging(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "urls.txt",
		"https://target.com/admin/config.php?password=test&token=abc123\n"+
			"https://target.com/about.html\n")

	e := mustEngine(t, Options{
		Rules:       rules.Set{Keywords: append([]string(nil), rules.DefaultKeywords...)},
		Intelligent: true,
		Annotate:    true,
	})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	f := res.Files[0]
	if f.Matched != 2 {
		t.Fatalf("intelligent mode with zero threshold emits everything, matched=%d", f.Matched)
	}
	if f.Tiers.High != 1 {
		t.Fatalf("tiers = %+v, want one high", f.Tiers)
	}

	out := readOut(t, f.Output)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if !strings.HasPrefix(lines[0], "[HIGH] [score:") {
		t.Fatalf("first line not tagged high: %q", lines[0])
	}
	if !strings.Contains(lines[0], "admin/config.php") {
		t.Fatalf("tag must wrap the original line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[LOW] [score:") {
		t.Fatalf("second line not tagged low: %q", lines[1])
	}
}

func TestRunIntelligentThreshold(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "urls.txt",
		"https://target.com/admin/config.php?password=test&token=abc123\n"+
			"https://target.com/about.html\n")

	e := mustEngine(t, Options{
		Rules:         rules.Set{Keywords: append([]string(nil), rules.DefaultKeywords...)},
		Intelligent:   true,
		RiskThreshold: 15,
	})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Files[0].Matched != 1 {
		t.Fatalf("threshold 15 should keep only the high-risk line, matched=%d", res.Files[0].Matched)
	}
}

func TestRunJSONStaysStructurallyIntact(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "findings.json",
		`[{"url":"https://a/admin"}, {"url":"https://a/about"}, {"url":"https://a/login?token=1"}]`)

	e := mustEngine(t, Options{
		Rules:       rules.Set{Keywords: []string{"admin", "token"}},
		Intelligent: true,
		Annotate:    true, // must be ignored for JSON
	})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var arr []map[string]string
	out := readOut(t, res.Files[0].Output)
	if err := json.Unmarshal([]byte(out), &arr); err != nil {
		t.Fatalf("filtered JSON must stay a valid array: %v\n%s", err, out)
	}
	if len(arr) != 3 {
		t.Fatalf("intelligent mode with zero threshold keeps all elements, got %d", len(arr))
	}
	if strings.Contains(out, "[HIGH]") || strings.Contains(out, "[LOW]") {
		t.Fatalf("JSON output must never carry tag prefixes:\n%s", out)
	}
}

func TestRunJSONMatchAllRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := `[{"url":"https://a/x","port":443}, "plain", [1,2,3], null, 7.5]`
	in := writeInput(t, dir, "data.json", orig)

	// empty rule set matches everything; the filtered array must contain
	// exactly the original elements
	e := mustEngine(t, Options{Rules: rules.Set{}})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var want, got []json.RawMessage
	if err := json.Unmarshal([]byte(orig), &want); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	if err := json.Unmarshal([]byte(readOut(t, res.Files[0].Output)), &got); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("elements = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != string(want[i]) {
			t.Fatalf("element %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunCSVKeepsHeader(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "findings.csv",
		"url,notes\nhttps://a/admin,panel\nhttps://a/about,info\n")

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got := readOut(t, res.Files[0].Output)
	want := "url,notes\nhttps://a/admin,panel\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRunDedupeAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.txt", "admin one\nadmin one\nadmin two\n")
	b := writeInput(t, dir, "b.txt", "admin one\nadmin three\n")

	e := mustEngine(t, Options{
		Rules:       rules.Set{Keywords: []string{"admin"}},
		Dedupe:      true,
		DedupeScope: fingerprint.ScopeLine,
		Workers:     1, // deterministic file order for the cross-file assertion
	})
	res, err := e.Run(context.Background(), []Task{{Path: a}, {Path: b}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	fa, fb := res.Files[0], res.Files[1]
	if fa.Matched != 2 || fa.Suppressed != 1 {
		t.Fatalf("file a: matched=%d suppressed=%d", fa.Matched, fa.Suppressed)
	}
	if fb.Matched != 1 || fb.Suppressed != 1 {
		t.Fatalf("file b: matched=%d suppressed=%d (dedup set is shared across the run)", fb.Matched, fb.Suppressed)
	}
}

func TestRunMatchLimit(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt", "admin 1\nadmin 2\nadmin 3\nadmin 4\n")

	e := mustEngine(t, Options{
		Rules:      rules.Set{Keywords: []string{"admin"}},
		MatchLimit: 2,
	})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Files[0].Matched != 2 {
		t.Fatalf("matched = %d, want 2", res.Files[0].Matched)
	}
}

func TestRunCacheSkipsSecondPass(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt", "admin line\n")
	cachePath := filepath.Join(dir, "state.json")

	opts := Options{
		Rules:        rules.Set{Keywords: []string{"admin"}},
		CacheEnabled: true,
		CachePath:    cachePath,
	}

	e := mustEngine(t, opts)
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.SkippedByCache != 0 || res.Files[0].Matched != 1 {
		t.Fatalf("first run must process the file: %+v", res.Files[0])
	}
	if res.CacheCaveat == "" {
		t.Fatalf("cached runs must surface the staleness caveat")
	}

	// fresh engine, same state file, unchanged input
	e2 := mustEngine(t, opts)
	res2, err := e2.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	f := res2.Files[0]
	if !f.SkippedByCache || f.Scanned != 0 {
		t.Fatalf("unchanged file must skip entirely: %+v", f)
	}
	if f.Outcome != perr.OutcomeSucceeded {
		t.Fatalf("cache skip outcome = %s", f.Outcome)
	}

	// changed content reprocesses
	writeInput(t, dir, "a.txt", "admin line changed\n")
	res3, err := e2.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if res3.Files[0].SkippedByCache {
		t.Fatalf("changed bytes must not skip")
	}
}

func TestRunMissingFileFailsThatFileOnly(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "good.txt", "admin ok\n")
	bad := filepath.Join(dir, "missing.txt")

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}})
	res, err := e.Run(context.Background(), []Task{{Path: good}, {Path: bad}})
	if err != nil {
		t.Fatalf("run-level error for per-file failure: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Files[1].Err == "" {
		t.Fatalf("failed file must carry its error")
	}
}

func TestRunRejectsDuplicateOutputs(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.txt", "x\n")
	b := writeInput(t, dir, "b.txt", "y\n")
	out := filepath.Join(dir, "same.txt")

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"x"}}})
	_, err := e.Run(context.Background(), []Task{
		{Path: a, Output: out},
		{Path: b, Output: out},
	})
	if err == nil {
		t.Fatalf("two tasks targeting one output must fail the run")
	}
}

func TestRunOutputRootConfinement(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "out")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	in := writeInput(t, dir, "a.txt", "admin\n")

	e := mustEngine(t, Options{
		Rules:      rules.Set{Keywords: []string{"admin"}},
		OutputRoot: root,
	})
	res, err := e.Run(context.Background(), []Task{
		{Path: in, Output: filepath.Join(root, "..", "escape.txt")},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	f := res.Files[0]
	if f.Outcome != perr.OutcomeFailed {
		t.Fatalf("escaping target must fail closed: %+v", f)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("escaped output must not exist")
	}
}

func TestRunDeterministicRecordOrder(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("admin record ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString("\n")
	}
	in := writeInput(t, dir, "a.txt", b.String())

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}, Workers: 4})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	first := readOut(t, res.Files[0].Output)

	for i := 0; i < 3; i++ {
		res, err := e.Run(context.Background(), []Task{{Path: in}})
		if err != nil {
			t.Fatalf("rerun %d: %v", i, err)
		}
		if got := readOut(t, res.Files[0].Output); got != first {
			t.Fatalf("rerun %d produced different output order", i)
		}
	}
}

func TestRunFooterOnTextOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt", "admin hit\n")

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}, Footer: true})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := readOut(t, res.Files[0].Output)
	if !strings.Contains(out, "Total matches: 1") {
		t.Fatalf("footer missing:\n%s", out)
	}
}

func TestRunCanceledContextAbortsCleanly(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt", "admin 1\nadmin 2\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}})
	res, err := e.Run(ctx, []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Canceled {
		t.Fatalf("run must report cancellation")
	}
	if res.Files[0].Outcome != perr.OutcomePartial {
		t.Fatalf("canceled file outcome = %s, want partial", res.Files[0].Outcome)
	}
	if _, err := os.Stat(filepath.Join(dir, "a_filtered.txt")); !os.IsNotExist(err) {
		t.Fatalf("aborted run must not leave a partial target")
	}
}

func TestRunJSONDecodeErrorIsPartial(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "bad.json", `["kept admin", {"broken": ]`)

	e := mustEngine(t, Options{Rules: rules.Set{Keywords: []string{"admin"}}})
	res, err := e.Run(context.Background(), []Task{{Path: in}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	f := res.Files[0]
	if f.Outcome != perr.OutcomePartial {
		t.Fatalf("outcome = %s, want partial", f.Outcome)
	}
	if f.Matched != 1 {
		t.Fatalf("records before the corruption are kept, matched=%d", f.Matched)
	}

	// the committed output is still a valid array
	var arr []any
	if err := json.Unmarshal([]byte(readOut(t, f.Output)), &arr); err != nil {
		t.Fatalf("partial JSON output must stay valid: %v", err)
	}
}

func TestOutcomeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want perr.Outcome
	}{
		{perr.Formatf("x"), perr.OutcomeFailed},
		{perr.PathSecurityf("x"), perr.OutcomeFailed},
		{perr.Writef("x"), perr.OutcomeFailed},
		{perr.Recordf("x"), perr.OutcomePartial},
	}
	for _, c := range cases {
		if got := perr.OutcomeOf(c.err); got != c.want {
			t.Fatalf("OutcomeOf(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}
