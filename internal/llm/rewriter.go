package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/citeaudit/internal/score"
	"github.com/ppiankov/citeaudit/internal/worker"
)

// ErrGroundingLeak marks model output that asserts something the evidence does not
var ErrGroundingLeak = errors.New("GROUNDING LEAK")

var (
	parenYearRE = regexp.MustCompile(`\([^()]*\b\d{4}[a-z]?\b[^()]*\)`)
	footnoteRE  = regexp.MustCompile(`\[\^[^\]\s]+\]`)
)

// Rewriter proposes evidence-bounded rewrites with a provider and rejects
// any output that is not grounded in the evidence
type Rewriter struct {
	provider Provider
	limiter  *worker.Limiter
	policy   *score.Policy // Scorer and default cutoff the output must pass against the evidence
	model    string
}

// NewRewriter creates a rewriter. A nil policy uses the lexical scorer at 0.6.
func NewRewriter(p Provider, limiter *worker.Limiter, policy *score.Policy, model string) *Rewriter {
	if limiter == nil {
		limiter = worker.NewLimiter(0, 1)
	}
	if policy == nil {
		policy = score.NewPolicy(score.NewLexicalScorer(), 0.6, 0)
	}
	return &Rewriter{provider: p, limiter: limiter, policy: policy, model: model}
}

// Rewrite returns a grounded rewrite of claim. markers are the citation
// markers the output may carry; a threshold in (0,1] overrides the policy cutoff.
func (r *Rewriter) Rewrite(ctx context.Context, claim, evidence string, markers []string, threshold float64) (string, error) {
	if err := r.limiter.Wait(ctx, r.provider.Name()); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	resp, err := r.provider.Complete(ctx, CompletionRequest{
		System: rewriteSystem,
		Prompt: BuildRewritePrompt(claim, evidence, markers),
		Model:  r.model,
	})
	if err != nil {
		return "", err
	}

	out := cleanSentence(resp.Text)
	if out == "" {
		return "", fmt.Errorf("empty rewrite from %s", r.provider.Name())
	}
	if err := r.CheckGrounding(ctx, out, evidence, markers, threshold); err != nil {
		return "", err
	}
	return out, nil
}

// CheckGrounding verifies that every figure and content word in out appears
// in the evidence, that out cites only allowed markers and that it passes the
// policy at threshold
func (r *Rewriter) CheckGrounding(ctx context.Context, out, evidence string, markers []string, threshold float64) error {
	evNums := score.Numbers(evidence)
	for _, n := range score.Numbers(stripMarkers(out)) {
		found := false
		for _, e := range evNums {
			if n.Matches(e) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: rewrite asserts figure %s%s absent from evidence", ErrGroundingLeak, n.Value, n.Unit)
		}
	}

	for _, m := range parenYearRE.FindAllString(out, -1) {
		if !containsMarker(markers, m) {
			return fmt.Errorf("%w: rewrite cites %s which the claim does not", ErrGroundingLeak, m)
		}
	}

	if missing := score.Ungrounded(stripMarkers(out), evidence); len(missing) > 0 {
		return fmt.Errorf("%w: rewrite asserts %q absent from evidence", ErrGroundingLeak, strings.Join(missing, " "))
	}

	policy := r.policy
	if threshold > 0 && threshold <= 1 {
		policy = score.NewPolicy(r.policy.Scorer, threshold, r.policy.Margin)
	}
	d, err := policy.Assess(ctx, stripMarkers(out), evidence)
	if err != nil {
		return err
	}
	if !d.Support {
		return fmt.Errorf("%w: rewrite scores %.2f against evidence, cutoff %.2f", ErrGroundingLeak, d.Score, d.Threshold)
	}
	return nil
}

func stripMarkers(s string) string {
	return footnoteRE.ReplaceAllString(parenYearRE.ReplaceAllString(s, ""), "")
}

func containsMarker(markers []string, m string) bool {
	for _, allowed := range markers {
		if allowed == m || "("+strings.Trim(allowed, "()")+")" == m {
			return true
		}
	}
	return false
}

func cleanSentence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Trim(s, "\"“”")
}
