package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	reviewsDir  string
	sourcesDir  string
	outputDir   string
	cacheDir    string
	noCache     bool
	noColor     bool
	workers     int
	scorerName  string
	threshold   float64
	useLLM      bool
	llmProvider string
	llmModel    string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Extract claims and resolve their citations",
	Long: `Enrich extracts every review and source document, links each cited
sentence to its citations and resolves them against the source corpus.

Writes extraction_errors.csv, registry.csv and enriched.jsonl.

Example:
  citeaudit enrich --reviews ./reviews --sources ./pdfs --out ./audit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config) (*pipeline.Report, error) {
			res, err := p.RunEnrich(ctx)
			if err != nil {
				return nil, err
			}
			return &pipeline.Report{
				Reviews:   res.Reviews,
				Sources:   res.Sources,
				Failures:  res.Failures,
				Claims:    len(res.Records),
				OutputDir: cfg.Paths.OutputDir,
			}, nil
		})
	},
}

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate",
	Short: "Assign a support verdict to every enriched claim",
	Long: `Adjudicate reads enriched.jsonl and scores each claim against the
passages of its resolved sources.

Writes adjudications.csv, adjudications.jsonl and summary.csv.

Example:
  citeaudit adjudicate --out ./audit
  citeaudit adjudicate --scorer llm --llm-provider ollama`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config) (*pipeline.Report, error) {
			adjudicated, err := p.RunAdjudicate(ctx)
			if err != nil {
				return nil, err
			}
			return &pipeline.Report{
				Claims:      len(adjudicated),
				Adjudicated: adjudicated,
				OutputDir:   cfg.Paths.OutputDir,
			}, nil
		})
	},
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Propose grounded rewrites for failing claims",
	Long: `Rewrite reads adjudications.jsonl and proposes one rewrite record per
failing claim. Claims with nothing to ground a rewrite on are marked no-rewrite.

Writes rewrites.csv.

Example:
  citeaudit rewrite --out ./audit
  citeaudit rewrite --use-llm --llm-provider anthropic`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config) (*pipeline.Report, error) {
			adjudicated, rewrites, err := p.RunRewrite(ctx)
			if err != nil {
				return nil, err
			}
			return &pipeline.Report{
				Claims:      len(adjudicated),
				Adjudicated: adjudicated,
				Rewrites:    rewrites,
				OutputDir:   cfg.Paths.OutputDir,
			}, nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run enrich, adjudicate and rewrite in sequence",
	Long: `Run executes all stages. Each stage commits its outputs before the
next one starts.

Example:
  citeaudit run --reviews ./reviews --sources ./pdfs --out ./audit
  citeaudit run -v --threshold 0.7`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config) (*pipeline.Report, error) {
			return p.Run(ctx)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{enrichCmd, adjudicateCmd, rewriteCmd, runCmd} {
		rootCmd.AddCommand(cmd)

		// Path flags
		cmd.Flags().StringVar(&outputDir, "out", "", "output directory (default from config: citeaudit-out)")
		cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
		cmd.Flags().IntVar(&workers, "workers", 0, "worker count for every stage (default: number of CPUs)")
		cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
		cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	}

	for _, cmd := range []*cobra.Command{enrichCmd, runCmd} {
		cmd.Flags().StringVar(&reviewsDir, "reviews", "", "directory of review documents (.md, .txt, .html, .docx)")
		cmd.Flags().StringVar(&sourcesDir, "sources", "", "directory of source documents (.pdf, .txt)")
		cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "extraction cache directory")
		cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the extraction and scoring cache")
	}

	for _, cmd := range []*cobra.Command{adjudicateCmd, rewriteCmd, runCmd} {
		cmd.Flags().StringVar(&scorerName, "scorer", "", "support scorer (lexical, llm)")
		cmd.Flags().Float64Var(&threshold, "threshold", 0, "support cutoff in (0,1]")
	}

	for _, cmd := range []*cobra.Command{rewriteCmd, runCmd} {
		cmd.Flags().BoolVar(&useLLM, "use-llm", false, "try an LLM rewrite before the deterministic one")
	}
}

type stageFunc func(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config) (*pipeline.Report, error)

// runStage builds the configuration and pipeline, runs one stage and prints
// the console summary
func runStage(cmd *cobra.Command, stage stageFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	p, err := pipeline.NewPipeline(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if verbose {
		fmt.Fprintf(os.Stderr, "Reviews: %s\n", cfg.Paths.ReviewsDir)
		fmt.Fprintf(os.Stderr, "Sources: %s\n", cfg.Paths.SourcesDir)
		fmt.Fprintf(os.Stderr, "Output: %s\n", cfg.Paths.OutputDir)
		fmt.Fprintf(os.Stderr, "Scorer: %s (threshold %.2f)\n", cfg.Adjudicate.Scorer, cfg.Adjudicate.Threshold)
		fmt.Fprintln(os.Stderr)
	}

	rep, err := stage(ctx, p, cfg)
	if err != nil {
		return fmt.Errorf("%s failed: %w", cmd.Name(), err)
	}

	pipeline.NewRenderer(cmd.OutOrStdout(), cfg.Output.Color).RenderSummary(rep)
	return nil
}

// applyFlags overrides config values with flags set on the command line
func applyFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()

	if flags.Changed("reviews") {
		cfg.Paths.ReviewsDir = reviewsDir
	}
	if flags.Changed("sources") {
		cfg.Paths.SourcesDir = sourcesDir
	}
	if flags.Changed("out") {
		cfg.Paths.OutputDir = outputDir
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = cacheDir
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noColor {
		cfg.Output.Color = false
	}
	if flags.Changed("workers") {
		cfg.Extract.Workers = workers
		cfg.Resolve.Workers = workers
		cfg.Adjudicate.Workers = workers
	}
	if flags.Changed("scorer") {
		cfg.Adjudicate.Scorer = scorerName
	}
	if flags.Changed("threshold") {
		cfg.Adjudicate.Threshold = threshold
	}
	if useLLM {
		cfg.Rewrite.UseLLM = true
	}
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
	}
	if flags.Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	if verbose {
		cfg.Output.Verbose = true
	}
}
