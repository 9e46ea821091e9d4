// Package resolve maps citation keys to source documents and retrieves the
// passages of a matched source that best relate to a claim.
package resolve

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/citeaudit/internal/citekey"
	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/score"
)

var (
	wordSpanRE  = regexp.MustCompile(`\S+`)
	stemTokenRE = regexp.MustCompile(`[a-z0-9]+`)
)

// Options controls windowing and retrieval
type Options struct {
	ChunkWords    int
	ChunkStride   int
	TopK          int
	MinMatchScore float64
}

// OptionsFromConfig maps resolver configuration to index options
func OptionsFromConfig(cfg model.ResolveConfig) Options {
	return Options{
		ChunkWords:    cfg.ChunkWords,
		ChunkStride:   cfg.ChunkStride,
		TopK:          cfg.TopK,
		MinMatchScore: cfg.MinMatchScore,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkWords <= 0 {
		o.ChunkWords = 180
	}
	if o.ChunkStride <= 0 {
		o.ChunkStride = 90
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MinMatchScore <= 0 {
		o.MinMatchScore = 0.6
	}
	return o
}

// Window is a fixed-size word window of one source page
type Window struct {
	Page  int
	Start int // Offset within the source Document.Text()
	End   int
	Text  string

	vec map[string]float64
}

// Source is an indexed source document
type Source struct {
	ID      string
	Path    string
	Key     citekey.Key // Parsed from the file stem
	Windows []Window

	tokens []string // Folded stem tokens
	joined string   // Folded stem tokens concatenated
	idf    map[string]float64
	maxIDF float64
	pages  []pageText
}

type pageText struct {
	page int
	norm string
}

// Index is the corpus search structure. It is built once and never mutated,
// so it may be shared by concurrent resolvers.
type Index struct {
	opts    Options
	sources []*Source // Sorted by id
	byWork  map[string][]*Source
}

// NewIndex builds the index from successfully extracted source documents
func NewIndex(docs []*model.Document, opts Options) *Index {
	opts = opts.withDefaults()
	idx := &Index{
		opts:   opts,
		byWork: make(map[string][]*Source),
	}

	for _, doc := range docs {
		src := indexSource(doc, opts)
		idx.sources = append(idx.sources, src)
	}
	sort.Slice(idx.sources, func(i, j int) bool { return idx.sources[i].ID < idx.sources[j].ID })

	for _, src := range idx.sources {
		if src.Key.Author != "" && src.Key.Year != "" {
			work := src.Key.Work()
			idx.byWork[work] = append(idx.byWork[work], src)
		}
	}

	return idx
}

// Len returns the number of indexed sources
func (idx *Index) Len() int {
	return len(idx.sources)
}

// Sources returns the indexed sources ordered by id
func (idx *Index) Sources() []*Source {
	return idx.sources
}

// Source returns the indexed source with the given id, or nil
func (idx *Index) Source(id string) *Source {
	i := sort.Search(len(idx.sources), func(i int) bool { return idx.sources[i].ID >= id })
	if i < len(idx.sources) && idx.sources[i].ID == id {
		return idx.sources[i]
	}
	return nil
}

// LocateQuote returns the first page of the source containing quote, compared
// case-insensitively with whitespace and quote marks normalised
func (idx *Index) LocateQuote(sourceID, quote string) (int, bool) {
	src := idx.Source(sourceID)
	if src == nil {
		return 0, false
	}
	q := normalizeQuote(quote)
	if q == "" {
		return 0, false
	}
	for _, p := range src.pages {
		if strings.Contains(p.norm, q) {
			return p.page, true
		}
	}
	return 0, false
}

var quoteFolder = strings.NewReplacer("“", "\"", "”", "\"", "‘", "'", "’", "'", "–", "-")

func normalizeQuote(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(quoteFolder.Replace(s))), " ")
}

func indexSource(doc *model.Document, opts Options) *Source {
	folded := citekey.Fold(doc.ID)
	tokens := stemTokenRE.FindAllString(folded, -1)

	src := &Source{
		ID:     doc.ID,
		Path:   doc.Path,
		Key:    citekey.Parse(doc.ID),
		tokens: tokens,
		joined: strings.Join(tokens, ""),
	}

	var termSets [][]string
	for _, block := range doc.Blocks {
		src.pages = append(src.pages, pageText{page: block.Page, norm: normalizeQuote(block.Text)})
		for _, w := range windows(block, opts.ChunkWords, opts.ChunkStride) {
			terms := score.Terms(w.Text)
			w.vec = score.TF(terms)
			termSets = append(termSets, terms)
			src.Windows = append(src.Windows, w)
		}
	}

	src.idf = score.IDF(termSets)
	for _, v := range src.idf {
		if v > src.maxIDF {
			src.maxIDF = v
		}
	}
	for i := range src.Windows {
		src.Windows[i].vec = score.Weight(src.Windows[i].vec, src.idf, src.maxIDF)
	}

	return src
}

// windows splits a page into word windows. The final window always reaches
// the end of the page.
func windows(block model.Block, size, stride int) []Window {
	spans := wordSpanRE.FindAllStringIndex(block.Text, -1)
	if len(spans) == 0 {
		return nil
	}

	var out []Window
	add := func(from int) {
		to := from + size
		if to > len(spans) {
			to = len(spans)
		}
		start, end := spans[from][0], spans[to-1][1]
		out = append(out, Window{
			Page:  block.Page,
			Start: block.Offset + start,
			End:   block.Offset + end,
			Text:  block.Text[start:end],
		})
	}

	last := 0
	for i := 0; i == 0 || i+size <= len(spans); i += stride {
		add(i)
		last = i
	}
	if last+size < len(spans) {
		add(len(spans) - size)
	}

	return out
}
