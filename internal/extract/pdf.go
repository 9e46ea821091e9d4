package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/ppiankov/citeaudit/internal/model"
)

// parsePDF extracts one block per page. A page whose content stream cannot be
// read as plain text falls back to row-ordered text; a page that fails both ways
// is skipped rather than failing the document.
func parsePDF(data []byte) ([]model.Block, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var blocks []model.Block
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text := pageText(page)
		if text == "" {
			continue
		}
		blocks = append(blocks, model.Block{Text: text, Page: i})
	}

	return blocks, nil
}

func pageText(page pdf.Page) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	plain, err := page.GetPlainText(nil)
	if err == nil && strings.TrimSpace(plain) != "" {
		return normalizeWhitespace(plain)
	}

	// Multi-column layouts sometimes only decode row by row
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var lines []string
	for _, row := range rows {
		var words []string
		for _, w := range row.Content {
			words = append(words, w.S)
		}
		lines = append(lines, strings.Join(words, ""))
	}
	return normalizeWhitespace(strings.Join(lines, "\n"))
}

// normalizeWhitespace collapses runs of spaces and tabs, keeping line breaks
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
