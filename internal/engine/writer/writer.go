// Package writer commits filter output atomically.
// Records accumulate into a temporary sibling file; Commit renames it over
// the target in a single operation, and Abort discards it, so the original
// target is never left partially overwritten. Target resolution rejects
// paths that escape the configured root
package writer

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"reconfilter/internal/engine/source"
	perr "reconfilter/internal/platform/errors"
)

// Options configures one writer scope
type Options struct {
	// Root confines target resolution when non-empty; any target escaping
	// it fails closed before the temp file is created
	Root string
	// Backup copies an existing target aside before it is replaced
	Backup    bool
	BackupDir string
	// FlushEach flushes after every record (forced-streaming mode)
	FlushEach bool
}

// Writer is a single-target atomic write scope. One writer owns one
// target for the run's duration; it is not safe for concurrent use
type Writer struct {
	target    string
	tmp       *os.File
	bw        *bufio.Writer
	em        emitter
	opts      Options
	committed bool
	aborted   bool
	wrote     int
}

// Open resolves target against opts.Root, creates the temporary sibling
// file, and writes any format preamble (CSV header, JSON array opener)
func Open(target string, format source.Format, header []string, opts Options) (*Writer, error) {
	resolved, err := resolveTarget(target, opts.Root)
	if err != nil {
		return nil, err
	}

	// confinement is already checked, so creating the directory is safe
	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWrite, "output dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(resolved)+".tmp-*")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWrite, "create temp for %s", resolved)
	}

	bufSize := 64 << 10
	if opts.FlushEach {
		bufSize = 4 << 10
	}

	w := &Writer{
		target: resolved,
		tmp:    tmp,
		bw:     bufio.NewWriterSize(tmp, bufSize),
		em:     newEmitter(format, header),
		opts:   opts,
	}
	if err := w.em.open(w.bw); err != nil {
		w.Abort()
		return nil, perr.Wrapf(err, perr.ErrorCodeWrite, "write preamble %s", resolved)
	}
	return w, nil
}

// Target returns the resolved canonical path this writer will commit to
func (w *Writer) Target() string { return w.target }

// Write emits one record. line is the rendered form (possibly tag-prefixed);
// fields carries the CSV row when the format preserves columns
func (w *Writer) Write(line string, fields []string) error {
	if w.committed || w.aborted {
		return perr.Writef("write after close on %s", w.target)
	}
	if err := w.em.write(w.bw, line, fields); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWrite, "write %s", w.target)
	}
	w.wrote++
	if w.opts.FlushEach {
		if err := w.bw.Flush(); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeWrite, "flush %s", w.target)
		}
	}
	return nil
}

// Wrote returns the number of records written so far
func (w *Writer) Wrote() int { return w.wrote }

// Commit writes the format trailer plus any footer lines, flushes and
// syncs the temp file, then renames it over the target. The rename is the
// sole mutation of the canonical path
func (w *Writer) Commit(footer ...string) error {
	if w.committed || w.aborted {
		return perr.Writef("commit after close on %s", w.target)
	}
	if err := w.em.close(w.bw, footer); err != nil {
		w.Abort()
		return perr.Wrapf(err, perr.ErrorCodeWrite, "finalize %s", w.target)
	}
	if err := w.bw.Flush(); err != nil {
		w.Abort()
		return perr.Wrapf(err, perr.ErrorCodeWrite, "flush %s", w.target)
	}
	if err := w.tmp.Sync(); err != nil {
		w.Abort()
		return perr.Wrapf(err, perr.ErrorCodeWrite, "sync %s", w.target)
	}
	if err := w.tmp.Close(); err != nil {
		w.aborted = true
		os.Remove(w.tmp.Name())
		return perr.Wrapf(err, perr.ErrorCodeWrite, "close %s", w.target)
	}

	if w.opts.Backup {
		if err := backupExisting(w.target, w.opts.BackupDir); err != nil {
			w.aborted = true
			os.Remove(w.tmp.Name())
			return err
		}
	}

	if err := os.Rename(w.tmp.Name(), w.target); err != nil {
		w.aborted = true
		os.Remove(w.tmp.Name())
		return perr.Wrapf(err, perr.ErrorCodeWrite, "commit %s", w.target)
	}
	w.committed = true
	return nil
}

// Abort discards the temporary file, leaving the target untouched.
// Safe to call multiple times and after Commit
func (w *Writer) Abort() {
	if w.committed || w.aborted {
		return
	}
	w.aborted = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// resolveTarget cleans target and enforces root confinement
func resolveTarget(target, root string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodePathSecurity, "resolve %s", target)
	}
	if root == "" {
		return abs, nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodePathSecurity, "resolve root %s", root)
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", perr.PathSecurityf("target %s escapes output root %s", target, root)
	}
	return abs, nil
}

// backupExisting copies the current target aside before replacement
func backupExisting(target, dir string) error {
	src, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWrite, "backup open %s", target)
	}
	defer src.Close()

	dest := target + ".bak"
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeWrite, "backup dir %s", dir)
		}
		dest = filepath.Join(dir, filepath.Base(target)+".bak")
	}

	out, err := os.Create(dest)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWrite, "backup create %s", dest)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		return perr.Wrapf(err, perr.ErrorCodeWrite, "backup copy %s", dest)
	}
	return nil
}
