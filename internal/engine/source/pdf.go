package source

import (
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	perr "reconfilter/internal/platform/errors"
)

// pdfSource extracts text page by page and re-segments it into logical
// lines so the rest of the pipeline sees ordinary records. Pages whose
// text cannot be extracted are skipped and counted
type pdfSource struct {
	f       *os.File
	r       *pdf.Reader
	path    string
	page    int
	pages   int
	lines   []string
	index   int
	skipped int
}

func openPDF(path string) (*pdfSource, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFormat, "open pdf %s", path)
	}
	return &pdfSource{f: f, r: r, path: path, pages: r.NumPage()}, nil
}

func (p *pdfSource) Next() (Record, error) {
	for len(p.lines) == 0 {
		if p.page >= p.pages {
			return Record{}, io.EOF
		}
		p.page++
		page := p.r.Page(p.page)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			p.skipped++
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" {
				p.lines = append(p.lines, line)
			}
		}
	}

	line := p.lines[0]
	p.lines = p.lines[1:]
	p.index++
	return Record{Raw: line, File: p.path, Index: p.index}, nil
}

func (p *pdfSource) Header() []string { return nil }
func (p *pdfSource) Skipped() int     { return p.skipped }
func (p *pdfSource) Close() error     { return p.f.Close() }
