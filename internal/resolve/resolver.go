package resolve

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/citeaudit/internal/citekey"
	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/score"
	"github.com/sahilm/fuzzy"
)

// Match is the source chosen for a citation key
type Match struct {
	Source *Source
	Method model.MatchMethod
	Score  float64
}

// Resolver resolves claim citations against an index. It is safe for
// concurrent use; results are memoised per key and per (source, statement).
type Resolver struct {
	index    *Index
	matches  sync.Map // work key -> Match
	passages sync.Map // source id + "\x00" + statement -> []model.Passage
}

// NewResolver creates a resolver over a built index
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns one ResolvedEvidence per claim citation, in citation order.
// A key with no sufficiently similar source is recorded with Method none.
func (r *Resolver) Resolve(ctx context.Context, claim model.Claim) ([]model.ResolvedEvidence, error) {
	out := make([]model.ResolvedEvidence, 0, len(claim.Citations))
	for _, cit := range claim.Citations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ev := model.ResolvedEvidence{Key: cit.Key, Method: model.MatchNone}
		m := r.Match(cit.Key)
		if m.Source != nil {
			ev.SourceID = m.Source.ID
			ev.SourcePath = m.Source.Path
			ev.Method = m.Method
			ev.MatchScore = m.Score
			ev.Passages = r.Passages(m.Source, claim.Statement)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Match finds the source for a citation key: exact canonical work match
// first, then a year-gated fuzzy match on the file stem
func (r *Resolver) Match(key string) Match {
	k := citekey.Parse(key)
	work := k.Work()
	if cached, ok := r.matches.Load(work); ok {
		return cached.(Match)
	}

	m := r.match(k)
	r.matches.Store(work, m)
	return m
}

func (r *Resolver) match(k citekey.Key) Match {
	if k.IsZero() {
		return Match{Method: model.MatchNone}
	}

	// Sources are sorted by id, so the first hit is the smallest id
	if hits := r.index.byWork[k.Work()]; len(hits) > 0 && k.Author != "" && k.Year != "" {
		return Match{Source: hits[0], Method: model.MatchExact, Score: 1}
	}

	var best *Source
	bestScore := 0.0
	for _, src := range r.index.sources {
		s := FuzzyScore(k, src)
		if s > bestScore {
			best, bestScore = src, s
		}
	}
	if best == nil || bestScore < r.index.opts.MinMatchScore {
		return Match{Method: model.MatchNone}
	}
	return Match{Source: best, Method: model.MatchFuzzy, Score: bestScore}
}

// FuzzyScore rates a source file stem against a citation key in [0,1].
// Differing years reject outright; the author weighs 0.6 and the year 0.4.
func FuzzyScore(k citekey.Key, src *Source) float64 {
	keyYear, srcYear := k.YearBase(), src.Key.YearBase()
	if keyYear != "" && srcYear != "" && keyYear != srcYear {
		return 0
	}

	yearScore := 0.5
	if keyYear != "" && keyYear == srcYear {
		yearScore = 1
	}

	return 0.6*authorScore(k.Author, src) + 0.4*yearScore
}

func authorScore(author string, src *Source) float64 {
	if author == "" || len(src.tokens) == 0 {
		return 0
	}

	variants := citekey.AuthorVariants(author)
	for _, v := range variants {
		for _, tok := range src.tokens {
			if tok == v {
				return 1
			}
		}
	}
	for _, v := range variants {
		if len(v) >= 4 && strings.Contains(src.joined, v) {
			return 0.8
		}
	}

	// Transliterations such as "muller" against "mueller" match as a tight
	// subsequence of the stem
	surname := variants[0]
	if len(variants) > 1 {
		surname = variants[1]
	}
	for _, m := range fuzzy.Find(surname, []string{src.joined}) {
		idx := m.MatchedIndexes
		if len(idx) == len(surname) && idx[len(idx)-1]-idx[0]+1 <= len(surname)+2 {
			return 0.5
		}
	}
	return 0
}

// Passages returns the top-k windows of src by TF-IDF cosine with the
// statement, ordered by score desc then start asc. Zero-score windows are dropped.
func (r *Resolver) Passages(src *Source, statement string) []model.Passage {
	memoKey := src.ID + "\x00" + statement
	if cached, ok := r.passages.Load(memoKey); ok {
		return clonePassages(cached.([]model.Passage))
	}

	query := score.Weight(score.TF(score.Terms(statement)), src.idf, src.maxIDF)

	var candidates []model.Passage
	for _, w := range src.Windows {
		s := score.Cosine(query, w.vec)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, model.Passage{
			SourceID: src.ID,
			Page:     w.Page,
			Start:    w.Start,
			End:      w.End,
			Text:     w.Text,
			Score:    s,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Start < candidates[j].Start
	})
	if len(candidates) > r.index.opts.TopK {
		candidates = candidates[:r.index.opts.TopK]
	}

	r.passages.Store(memoKey, candidates)
	return clonePassages(candidates)
}

func clonePassages(in []model.Passage) []model.Passage {
	if in == nil {
		return nil
	}
	out := make([]model.Passage, len(in))
	copy(out, in)
	return out
}
