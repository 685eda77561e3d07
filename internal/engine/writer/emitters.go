package writer

import (
	"bufio"
	"encoding/csv"
	"strings"

	"reconfilter/internal/engine/source"
)

// emitter renders records in a target format, preserving the input's
// structure (JSON array validity, CSV header, text lines)
type emitter interface {
	open(w *bufio.Writer) error
	write(w *bufio.Writer, line string, fields []string) error
	close(w *bufio.Writer, footer []string) error
}

func newEmitter(format source.Format, header []string) emitter {
	switch format {
	case source.FormatJSON:
		return &jsonEmitter{}
	case source.FormatCSV:
		return &csvEmitter{header: header}
	default:
		// PDF output is the extracted text, line per record
		return &textEmitter{}
	}
}

type textEmitter struct{}

func (*textEmitter) open(*bufio.Writer) error { return nil }

func (*textEmitter) write(w *bufio.Writer, line string, _ []string) error {
	if _, err := w.WriteString(strings.TrimRight(line, "\r\n")); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

func (*textEmitter) close(w *bufio.Writer, footer []string) error {
	for _, line := range footer {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// jsonEmitter re-wraps elements into a valid array regardless of how many
// records survive filtering
type jsonEmitter struct {
	wrote bool
}

func (*jsonEmitter) open(w *bufio.Writer) error {
	return w.WriteByte('[')
}

func (e *jsonEmitter) write(w *bufio.Writer, line string, _ []string) error {
	prefix := "\n  "
	if e.wrote {
		prefix = ",\n  "
	}
	if _, err := w.WriteString(prefix); err != nil {
		return err
	}
	_, err := w.WriteString(line)
	e.wrote = true
	return err
}

func (e *jsonEmitter) close(w *bufio.Writer, _ []string) error {
	if e.wrote {
		_, err := w.WriteString("\n]\n")
		return err
	}
	_, err := w.WriteString("]\n")
	return err
}

type csvEmitter struct {
	header []string
	cw     *csv.Writer
}

func (e *csvEmitter) open(w *bufio.Writer) error {
	e.cw = csv.NewWriter(w)
	if len(e.header) == 0 {
		return nil
	}
	if err := e.cw.Write(e.header); err != nil {
		return err
	}
	e.cw.Flush()
	return e.cw.Error()
}

func (e *csvEmitter) write(_ *bufio.Writer, line string, fields []string) error {
	row := fields
	if row == nil {
		row = strings.Split(line, ",")
	}
	if err := e.cw.Write(row); err != nil {
		return err
	}
	e.cw.Flush()
	return e.cw.Error()
}

func (e *csvEmitter) close(*bufio.Writer, []string) error {
	e.cw.Flush()
	return e.cw.Error()
}
