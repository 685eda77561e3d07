package source

import (
	"bufio"
	"io"
	"os"
	"strings"

	perr "reconfilter/internal/platform/errors"
)

// readerBufSize bounds the working window per stream
const readerBufSize = 256 << 10

type textSource struct {
	f       *os.File
	r       *bufio.Reader
	path    string
	index   int
	skipped int
}

func openText(path string) (*textSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFormat, "open %s", path)
	}
	return &textSource{f: f, r: bufio.NewReaderSize(f, readerBufSize), path: path}, nil
}

func (t *textSource) Next() (Record, error) {
	for {
		line, err := t.r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			// record exceeds the bounded window: drain to end of line,
			// count it as malformed, and keep going
			t.skipped++
			for err == bufio.ErrBufferFull {
				_, err = t.r.ReadSlice('\n')
			}
			if err == io.EOF {
				return Record{}, io.EOF
			}
			if err != nil {
				return Record{}, perr.Wrapf(err, perr.ErrorCodeRecord, "read %s", t.path)
			}
			continue
		}
		if err == io.EOF {
			if len(line) == 0 {
				return Record{}, io.EOF
			}
			// final line without trailing newline
		} else if err != nil {
			return Record{}, perr.Wrapf(err, perr.ErrorCodeRecord, "read %s", t.path)
		}

		t.index++
		raw := strings.TrimRight(string(line), "\r\n")
		return Record{Raw: raw, File: t.path, Index: t.index}, nil
	}
}

func (t *textSource) Header() []string { return nil }
func (t *textSource) Skipped() int     { return t.skipped }
func (t *textSource) Close() error     { return t.f.Close() }
