// Package pipeline runs the audit stages over full item sets:
// extract, link and resolve (enrich), adjudicate, then rewrite.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/citeaudit/internal/adjudicate"
	"github.com/ppiankov/citeaudit/internal/cache"
	"github.com/ppiankov/citeaudit/internal/extract"
	"github.com/ppiankov/citeaudit/internal/llm"
	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/registry"
	"github.com/ppiankov/citeaudit/internal/resolve"
	"github.com/ppiankov/citeaudit/internal/rewrite"
	"github.com/ppiankov/citeaudit/internal/score"
	"github.com/ppiankov/citeaudit/internal/validate"
	"github.com/ppiankov/citeaudit/internal/worker"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingInput is returned when an input directory or stage input file is absent
	ErrMissingInput = errors.New("missing input")

	// ErrEmptyCorpus is returned when no source document could be extracted
	ErrEmptyCorpus = errors.New("no usable source documents")
)

// claimResolver resolves the citations of one claim
type claimResolver interface {
	Resolve(ctx context.Context, claim model.Claim) ([]model.ResolvedEvidence, error)
}

// Pipeline orchestrates the audit stages
type Pipeline struct {
	config      *model.Config
	extractor   *extract.Extractor
	linker      *extract.Linker
	newResolver func(*resolve.Index) claimResolver
	cache       cache.Cache
	limiter     *worker.Limiter
	provider    llm.Provider // nil when no LLM is configured
	logger      *log.Logger  // Verbose lines; discards unless output.verbose
	warn        io.Writer    // Per-item failures, always shown
}

// NewPipeline creates a pipeline. The LLM provider is only constructed when
// a stage is configured to use it.
func NewPipeline(cfg *model.Config, stderr io.Writer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Output.Verbose {
		logger = log.New(stderr, "", 0)
	}

	c := cache.New(cfg.Cache)

	p := &Pipeline{
		config:    cfg,
		extractor: extract.NewExtractor(c),
		linker:    extract.NewLinker(),
		newResolver: func(idx *resolve.Index) claimResolver {
			return resolve.NewResolver(idx)
		},
		cache:   c,
		limiter: worker.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst),
		logger:  logger,
		warn:    stderr,
	}

	if cfg.Adjudicate.Scorer == "llm" || cfg.Rewrite.UseLLM {
		provider, err := llm.NewProvider(llm.ApplyEnv(llm.ConfigFromModel(cfg.LLM)))
		if err != nil {
			return nil, fmt.Errorf("init LLM provider: %w", err)
		}
		p.provider = provider
	}

	return p, nil
}

// WithProvider replaces the LLM provider
func (p *Pipeline) WithProvider(provider llm.Provider) *Pipeline {
	p.provider = provider
	return p
}

// EnrichResult is the output of the enrich stage
type EnrichResult struct {
	Records  []model.EnrichedRecord
	Failures []model.ExtractionFailure
	Reviews  int // Reviews extracted
	Sources  int // Sources extracted
	Index    *resolve.Index
}

// Enrich extracts every review and source, links claims to citations and
// resolves each citation against the source corpus
func (p *Pipeline) Enrich(ctx context.Context) (*EnrichResult, error) {
	reviewPaths, err := p.discover(p.config.Paths.ReviewsDir, model.KindReview)
	if err != nil {
		return nil, err
	}
	sourcePaths, err := p.discover(p.config.Paths.SourcesDir, model.KindSource)
	if err != nil {
		return nil, err
	}

	res := &EnrichResult{}

	reviews, failures := p.extractAll(ctx, reviewPaths, model.KindReview)
	res.Failures = append(res.Failures, failures...)
	sources, failures := p.extractAll(ctx, sourcePaths, model.KindSource)
	res.Failures = append(res.Failures, failures...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Reviews = len(reviews)
	res.Sources = len(sources)
	p.reportFailures(res.Failures)

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyCorpus, p.config.Paths.SourcesDir)
	}

	res.Index = resolve.NewIndex(sources, resolve.OptionsFromConfig(p.config.Resolve))
	p.logger.Printf("indexed %d sources", res.Index.Len())

	var claims []model.Claim
	for _, doc := range reviews {
		linked := p.linker.Link(doc)
		p.logger.Printf("%s: %d claims", doc.ID, len(linked))
		claims = append(claims, linked...)
	}

	records, err := p.resolveAll(ctx, res.Index, claims)
	if err != nil {
		return nil, err
	}
	registry.SortEnriched(records)
	res.Records = records

	return res, nil
}

// discover lists ingestible files under dir in lexical order. Hidden files
// and directories are skipped.
func (p *Pipeline) discover(dir string, kind model.DocumentKind) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s directory %s: %v", ErrMissingInput, kind, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s path %s is not a directory", ErrMissingInput, kind, dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !extract.Supported(path, kind) {
			p.logger.Printf("skipping %s: not a %s format", path, kind)
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return paths, nil
}

// extractAll extracts documents with a per-item timeout. Failures and
// duplicate document ids become ExtractionFailure rows.
func (p *Pipeline) extractAll(ctx context.Context, paths []string, kind model.DocumentKind) ([]*model.Document, []model.ExtractionFailure) {
	bp := worker.NewBatchProcessor[*model.Document](p.config.Extract.Workers, p.config.Extract.Timeout)
	results := bp.Process(ctx, paths, func(ctx context.Context, path string) (*model.Document, error) {
		return p.extractor.Extract(ctx, path, kind)
	})

	var docs []*model.Document
	var failures []model.ExtractionFailure
	seen := make(map[string]string)

	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, model.ExtractionFailure{Path: r.ID, Kind: kind, Error: r.Err.Error()})
			continue
		}
		doc := r.Value
		if first, dup := seen[doc.ID]; dup {
			failures = append(failures, model.ExtractionFailure{
				Path:  r.ID,
				Kind:  kind,
				Error: fmt.Sprintf("duplicate document id %q (already extracted from %s)", doc.ID, first),
			})
			continue
		}
		seen[doc.ID] = r.ID
		p.logger.Printf("extracted %s %s: %d blocks in %v", kind, doc.ID, len(doc.Blocks), r.Duration)
		docs = append(docs, doc)
	}
	return docs, failures
}

func (p *Pipeline) reportFailures(failures []model.ExtractionFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(p.warn, "Warning: %d file(s) could not be extracted:\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(p.warn, "  %s: %s\n", f.Path, f.Error)
	}
}

// resolveAll resolves claims concurrently into an index-addressed slice
func (p *Pipeline) resolveAll(ctx context.Context, index *resolve.Index, claims []model.Claim) ([]model.EnrichedRecord, error) {
	resolver := p.newResolver(index)
	records := make([]model.EnrichedRecord, len(claims))
	timedOut := make([]bool, len(claims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(p.config.Resolve.Workers))

	for i := range claims {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cctx, cancel := withTimeout(gctx, p.config.Resolve.Timeout)
			defer cancel()

			evidence, err := resolver.Resolve(cctx, claims[i])
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Timed out: every key is recorded as unresolved
				timedOut[i] = true
				evidence = unresolved(claims[i])
			}
			records[i] = model.EnrichedRecord{Claim: claims[i], Evidence: evidence}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	for i, t := range timedOut {
		if t {
			fmt.Fprintf(p.warn, "Warning: resolution timed out for claim %s (%s)\n", claims[i].ID, claims[i].ReviewID)
		}
	}
	return records, nil
}

func unresolved(claim model.Claim) []model.ResolvedEvidence {
	out := make([]model.ResolvedEvidence, len(claim.Citations))
	for i, cit := range claim.Citations {
		out[i] = model.ResolvedEvidence{Key: cit.Key, Method: model.MatchNone}
	}
	return out
}

// Scorer returns the configured support scorer
func (p *Pipeline) Scorer() (score.Scorer, error) {
	switch p.config.Adjudicate.Scorer {
	case "llm":
		if p.provider == nil {
			return nil, fmt.Errorf("adjudicate.scorer is llm but no LLM provider is available")
		}
		return llm.NewEntailmentScorer(p.provider, p.cache, p.limiter, p.config.LLM.Model), nil
	default:
		return score.NewLexicalScorer(), nil
	}
}

// Adjudicate assigns one verdict per record. locator may be nil when the
// source corpus is not loaded.
func (p *Pipeline) Adjudicate(ctx context.Context, records []model.EnrichedRecord, locator adjudicate.QuoteLocator) ([]model.AdjudicatedClaim, error) {
	scorer, err := p.Scorer()
	if err != nil {
		return nil, err
	}
	policy := score.NewPolicy(scorer, p.config.Adjudicate.Threshold, p.config.Adjudicate.Margin)
	adj := adjudicate.New(policy, p.config.Adjudicate.Timeout, p.logger)
	if locator != nil {
		adj.WithLocator(locator)
	}

	out := make([]model.AdjudicatedClaim, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(p.config.Adjudicate.Workers))
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = model.AdjudicatedClaim{
				Claim:        records[i].Claim,
				Adjudication: adj.Adjudicate(gctx, records[i]),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("adjudicate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("adjudicate: %w", err)
	}

	registry.SortAdjudicated(out)

	claims := make([]model.Claim, len(records))
	for i := range records {
		claims[i] = records[i].Claim
	}
	if err := validate.Check(claims, out, nil); err != nil {
		return nil, err
	}

	errored := 0
	for _, ac := range out {
		for _, f := range ac.Adjudication.RiskFlags {
			if f == model.FlagScorerError {
				errored++
			}
		}
	}
	if errored > 0 {
		fmt.Fprintf(p.warn, "Warning: scorer failed on %d claim(s); failed passages were scored 0\n", errored)
	}

	return out, nil
}

// ProposeRewrites produces one record per FAIL claim, in adjudication order
func (p *Pipeline) ProposeRewrites(ctx context.Context, adjudicated []model.AdjudicatedClaim) ([]model.Rewrite, error) {
	// Claims carry the cutoff they were judged by; the configured one covers the rest
	proposer := rewrite.NewProposer(p.config.Adjudicate.Threshold, p.config.Rewrite.MinEvidenceScore, p.logger)
	if p.config.Rewrite.UseLLM {
		if p.provider == nil {
			return nil, fmt.Errorf("rewrite.use_llm is set but no LLM provider is available")
		}
		lexical := score.NewPolicy(score.NewLexicalScorer(), p.config.Adjudicate.Threshold, 0)
		proposer.WithLLM(llm.NewRewriter(p.provider, p.limiter, lexical, p.config.LLM.Model))
	}

	type slot struct {
		rw model.Rewrite
		ok bool
	}
	slots := make([]slot, len(adjudicated))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(p.config.Adjudicate.Workers))
	for i := range adjudicated {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rw, ok := proposer.Propose(gctx, adjudicated[i])
			slots[i] = slot{rw: rw, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	rewrites := make([]model.Rewrite, 0, len(adjudicated))
	for _, s := range slots {
		if s.ok {
			rewrites = append(rewrites, s.rw)
		}
	}

	if err := validate.Check(nil, adjudicated, rewrites); err != nil {
		return nil, err
	}
	return rewrites, nil
}

func workers(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
