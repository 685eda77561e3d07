package source

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	perr "reconfilter/internal/platform/errors"
)

// jsonSource descends into a top-level JSON array token by token and
// yields one record per element without parsing the whole array
type jsonSource struct {
	f       *os.File
	dec     *json.Decoder
	path    string
	index   int
	skipped int
	done    bool
}

func openJSON(path string) (*jsonSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFormat, "open %s", path)
	}
	dec := json.NewDecoder(bufio.NewReaderSize(f, readerBufSize))

	tok, err := dec.Token()
	if err != nil {
		f.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeFormat, "parse %s", path)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		f.Close()
		return nil, perr.Formatf("%s: top-level JSON array required", path)
	}
	return &jsonSource{f: f, dec: dec, path: path}, nil
}

func (j *jsonSource) Next() (Record, error) {
	if j.done {
		return Record{}, io.EOF
	}
	if !j.dec.More() {
		j.done = true
		if _, err := j.dec.Token(); err != nil && err != io.EOF {
			return Record{}, perr.Wrapf(err, perr.ErrorCodeRecord, "close array %s", j.path)
		}
		return Record{}, io.EOF
	}

	var raw json.RawMessage
	if err := j.dec.Decode(&raw); err != nil {
		// a corrupt element poisons the decoder state; the stream cannot
		// continue past it
		j.done = true
		j.skipped++
		return Record{}, perr.Wrapf(err, perr.ErrorCodeRecord, "element %d in %s", j.index+1, j.path)
	}

	j.index++
	return Record{Raw: string(raw), File: j.path, Index: j.index}, nil
}

func (j *jsonSource) Header() []string { return nil }
func (j *jsonSource) Skipped() int     { return j.skipped }
func (j *jsonSource) Close() error     { return j.f.Close() }
