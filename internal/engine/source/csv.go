package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	perr "reconfilter/internal/platform/errors"
)

// csvSource treats the first row as a header and yields one record per
// data row. Rows that fail to parse are skipped and counted
type csvSource struct {
	f       *os.File
	r       *csv.Reader
	path    string
	header  []string
	index   int
	skipped int
}

func openCSV(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFormat, "open %s", path)
	}
	r := csv.NewReader(bufio.NewReaderSize(f, readerBufSize))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		// empty file: a valid stream with no records
		return &csvSource{f: f, r: r, path: path}, nil
	}
	if err != nil {
		f.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeFormat, "parse header %s", path)
	}
	return &csvSource{f: f, r: r, path: path, header: header}, nil
}

func (c *csvSource) Next() (Record, error) {
	for {
		row, err := c.r.Read()
		if err == io.EOF {
			return Record{}, io.EOF
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			c.skipped++
			continue
		}
		if err != nil {
			return Record{}, perr.Wrapf(err, perr.ErrorCodeRecord, "read %s", c.path)
		}

		c.index++
		return Record{
			Raw:    strings.Join(row, ","),
			Fields: row,
			File:   c.path,
			Index:  c.index,
		}, nil
	}
}

func (c *csvSource) Header() []string { return c.header }
func (c *csvSource) Skipped() int     { return c.skipped }
func (c *csvSource) Close() error     { return c.f.Close() }
