package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/registry"
)

// Report summarises a run for the console
type Report struct {
	Reviews     int
	Sources     int
	Failures    []model.ExtractionFailure
	Claims      int
	Adjudicated []model.AdjudicatedClaim
	Rewrites    []model.Rewrite
	OutputDir   string
}

// RunEnrich runs the enrich stage and commits its outputs
func (p *Pipeline) RunEnrich(ctx context.Context) (*EnrichResult, error) {
	res, err := p.Enrich(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.WriteEnrich(res); err != nil {
		return nil, err
	}
	return res, nil
}

// RunAdjudicate reads the enrich stage output, adjudicates and commits
func (p *Pipeline) RunAdjudicate(ctx context.Context) ([]model.AdjudicatedClaim, error) {
	records, err := readStageInput[model.EnrichedRecord](p.config.Paths.OutputDir, registry.EnrichedFile, "enrich")
	if err != nil {
		return nil, err
	}
	adjudicated, err := p.Adjudicate(ctx, records, nil)
	if err != nil {
		return nil, err
	}
	if err := p.WriteAdjudications(adjudicated); err != nil {
		return nil, err
	}
	return adjudicated, nil
}

// RunRewrite reads the adjudicate stage output, proposes rewrites and commits
func (p *Pipeline) RunRewrite(ctx context.Context) ([]model.AdjudicatedClaim, []model.Rewrite, error) {
	adjudicated, err := readStageInput[model.AdjudicatedClaim](p.config.Paths.OutputDir, registry.AdjudicationsJSONL, "adjudicate")
	if err != nil {
		return nil, nil, err
	}
	rewrites, err := p.ProposeRewrites(ctx, adjudicated)
	if err != nil {
		return nil, nil, err
	}
	if err := p.WriteRewrites(rewrites); err != nil {
		return nil, nil, err
	}
	return adjudicated, rewrites, nil
}

// Run executes all three stages, committing each before the next starts
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	res, err := p.RunEnrich(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Printf("enrich: %d claims in %v", len(res.Records), time.Since(start).Round(time.Millisecond))

	adjudicated, err := p.Adjudicate(ctx, res.Records, res.Index)
	if err != nil {
		return nil, err
	}
	if err := p.WriteAdjudications(adjudicated); err != nil {
		return nil, err
	}
	p.logger.Printf("adjudicate: %d verdicts in %v", len(adjudicated), time.Since(start).Round(time.Millisecond))

	rewrites, err := p.ProposeRewrites(ctx, adjudicated)
	if err != nil {
		return nil, err
	}
	if err := p.WriteRewrites(rewrites); err != nil {
		return nil, err
	}
	p.logger.Printf("rewrite: %d records in %v", len(rewrites), time.Since(start).Round(time.Millisecond))

	return &Report{
		Reviews:     res.Reviews,
		Sources:     res.Sources,
		Failures:    res.Failures,
		Claims:      len(res.Records),
		Adjudicated: adjudicated,
		Rewrites:    rewrites,
		OutputDir:   p.config.Paths.OutputDir,
	}, nil
}

// WriteEnrich commits extraction_errors.csv, registry.csv and enriched.jsonl
func (p *Pipeline) WriteEnrich(res *EnrichResult) error {
	return p.commit(map[string]func(io.Writer) error{
		registry.ExtractionErrorsFile: func(w io.Writer) error { return registry.WriteExtractionErrors(w, res.Failures) },
		registry.RegistryFile:         func(w io.Writer) error { return registry.WriteRegistry(w, res.Records) },
		registry.EnrichedFile:         func(w io.Writer) error { return registry.WriteJSONL(w, res.Records) },
	})
}

// WriteAdjudications commits adjudications.csv, adjudications.jsonl and summary.csv
func (p *Pipeline) WriteAdjudications(adjudicated []model.AdjudicatedClaim) error {
	return p.commit(map[string]func(io.Writer) error{
		registry.AdjudicationsFile:  func(w io.Writer) error { return registry.WriteAdjudications(w, adjudicated) },
		registry.AdjudicationsJSONL: func(w io.Writer) error { return registry.WriteJSONL(w, adjudicated) },
		registry.SummaryFile:        func(w io.Writer) error { return registry.WriteSummary(w, registry.Summarize(adjudicated)) },
	})
}

// WriteRewrites commits rewrites.csv
func (p *Pipeline) WriteRewrites(rewrites []model.Rewrite) error {
	return p.commit(map[string]func(io.Writer) error{
		registry.RewritesFile: func(w io.Writer) error { return registry.WriteRewrites(w, rewrites) },
	})
}

func (p *Pipeline) commit(files map[string]func(io.Writer) error) error {
	stage, err := registry.NewStage(p.config.Paths.OutputDir)
	if err != nil {
		return err
	}
	for _, name := range sortedNames(files) {
		if err := stage.Write(name, files[name]); err != nil {
			stage.Abort()
			return err
		}
	}
	if err := stage.Commit(); err != nil {
		return err
	}
	for _, name := range sortedNames(files) {
		p.logger.Printf("wrote %s", registry.Path(p.config.Paths.OutputDir, name))
	}
	return nil
}

func readStageInput[T any](dir, name, producer string) ([]T, error) {
	path := registry.Path(dir, name)
	items, err := registry.ReadJSONLFile[T](path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found (run `citeaudit %s` first)", ErrMissingInput, path, producer)
	}
	return items, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
