package model

import "strings"

// DocumentKind tags a document as a review under audit or a cited source
type DocumentKind string

const (
	KindReview DocumentKind = "review"
	KindSource DocumentKind = "source"
)

// Valid reports whether the kind is one of the two ingested kinds
func (k DocumentKind) Valid() bool {
	return k == KindReview || k == KindSource
}

// Document is the normalized text of one input file.
// Block offsets index into Text(), which joins blocks with a single newline.
type Document struct {
	ID        string            `json:"id" msgpack:"id"`     // File stem
	Path      string            `json:"path" msgpack:"path"` // Path as discovered on disk
	Hash      string            `json:"hash" msgpack:"hash"` // sha256:<hex> of the raw file
	Kind      DocumentKind      `json:"kind" msgpack:"kind"`
	Blocks    []Block           `json:"blocks" msgpack:"blocks"`
	Footnotes map[string]string `json:"footnotes,omitempty" msgpack:"footnotes,omitempty"` // Footnote id -> footnote text
}

// Block is a paragraph, heading, table row or PDF page
type Block struct {
	Index   int    `json:"index" msgpack:"index"`
	Text    string `json:"text" msgpack:"text"`
	Offset  int    `json:"offset" msgpack:"offset"`                     // Byte offset of Text within Document.Text()
	Page    int    `json:"page,omitempty" msgpack:"page,omitempty"`       // 1-based page for sources, 0 for reviews
	Heading int    `json:"heading,omitempty" msgpack:"heading,omitempty"` // Heading level (1-6), 0 for body text
}

// NewDocument assigns block indexes and offsets and returns the document
func NewDocument(id, path, hash string, kind DocumentKind, blocks []Block, footnotes map[string]string) *Document {
	offset := 0
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		b.Text = strings.TrimSpace(b.Text)
		if b.Text == "" {
			continue
		}
		b.Index = len(out)
		b.Offset = offset
		offset += len(b.Text) + 1
		out = append(out, b)
	}
	return &Document{
		ID:        id,
		Path:      path,
		Hash:      hash,
		Kind:      kind,
		Blocks:    out,
		Footnotes: footnotes,
	}
}

// Text returns the full document text
func (d *Document) Text() string {
	parts := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}

// Pages returns the set of page numbers present, in ascending order
func (d *Document) Pages() []int {
	var pages []int
	last := -1
	for _, b := range d.Blocks {
		if b.Page != last {
			pages = append(pages, b.Page)
			last = b.Page
		}
	}
	return pages
}

// ExtractionFailure records a file that could not be extracted.
// The document is excluded from every later stage.
type ExtractionFailure struct {
	Path  string       `json:"path"`
	Kind  DocumentKind `json:"kind"`
	Error string       `json:"error"`
}
