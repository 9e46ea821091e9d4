package extract

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/citeaudit/internal/cache"
	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnsupported is returned for files whose extension is not ingested for the kind
var ErrUnsupported = errors.New("unsupported file type")

var (
	reviewExts = map[string]bool{".docx": true, ".md": true, ".txt": true, ".html": true, ".htm": true}
	sourceExts = map[string]bool{".pdf": true, ".txt": true}
)

// Supported reports whether a file of this kind is ingested
func Supported(path string, kind model.DocumentKind) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch kind {
	case model.KindReview:
		return reviewExts[ext]
	case model.KindSource:
		return sourceExts[ext]
	}
	return false
}

// Extractor turns review and source files into position-addressable documents
type Extractor struct {
	cache cache.Cache // Optional, keyed by content hash
}

// NewExtractor creates an extractor; c may be nil to disable caching
func NewExtractor(c cache.Cache) *Extractor {
	return &Extractor{cache: c}
}

// Extract reads and parses a single file.
// Panics raised by a format parser on malformed input are returned as errors.
func (e *Extractor) Extract(ctx context.Context, path string, kind model.DocumentKind) (doc *model.Document, err error) {
	if !Supported(path, kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	id := DocumentID(path)
	key := cache.CacheKey(string(kind) + ":" + hash)

	if cached := e.fromCache(key); cached != nil {
		cached.ID = id
		cached.Path = path
		return cached, nil
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("parse %s: malformed file: %v", filepath.Base(path), r)
		}
	}()

	var blocks []model.Block
	var footnotes map[string]string

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".docx":
		blocks, footnotes, err = parseDOCX(data)
	case ext == ".html" || ext == ".htm":
		blocks, err = parseHTML(data)
	case ext == ".pdf":
		blocks, err = parsePDF(data)
	case kind == model.KindSource:
		blocks = parsePagedText(string(data))
	default:
		blocks, footnotes = parseReviewText(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	doc = model.NewDocument(id, path, hash, kind, blocks, footnotes)
	if len(doc.Blocks) == 0 {
		return nil, fmt.Errorf("parse %s: no extractable text", filepath.Base(path))
	}

	e.toCache(key, doc)
	return doc, nil
}

// DocumentID derives a document id from its file name
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (e *Extractor) fromCache(key string) *model.Document {
	if e.cache == nil {
		return nil
	}
	data, found := e.cache.Get(key)
	if !found {
		return nil
	}
	var doc model.Document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		_ = e.cache.Delete(key)
		return nil
	}
	return &doc
}

func (e *Extractor) toCache(key string, doc *model.Document) {
	if e.cache == nil {
		return
	}
	data, err := msgpack.Marshal(doc)
	if err != nil {
		return
	}
	_ = e.cache.Set(key, data, 0)
}
