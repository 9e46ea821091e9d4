// Package score decides whether a passage supports a claim.
//
// Scoring is pluggable: any Scorer returning a value in [0,1] can back a
// Policy, which applies a fixed cutoff. Nothing else in the pipeline depends on
// how a score is produced.
package score

import (
	"context"
	"fmt"
	"math"
)

// Scorer rates how well a passage supports a claim, in [0,1]
type Scorer interface {
	Name() string
	Score(ctx context.Context, claim, passage string) (float64, error)
}

// Decision is the outcome of applying a policy to one score
type Decision struct {
	Score     float64
	Threshold float64
	Support   bool
	Ambiguous bool // Within the policy margin of the cutoff
}

// Policy applies a fixed support cutoff to a scorer
type Policy struct {
	Scorer    Scorer
	Threshold float64
	Margin    float64
}

// NewPolicy creates a policy; a threshold outside (0,1] falls back to 0.6
func NewPolicy(s Scorer, threshold, margin float64) *Policy {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	if margin < 0 {
		margin = 0
	}
	return &Policy{Scorer: s, Threshold: threshold, Margin: margin}
}

// Decide maps a score to support or no-support
func (p *Policy) Decide(score float64) Decision {
	score = Clamp(score)
	return Decision{
		Score:     score,
		Threshold: p.Threshold,
		Support:   score >= p.Threshold,
		Ambiguous: math.Abs(score-p.Threshold) < p.Margin,
	}
}

// Assess scores one passage and decides it
func (p *Policy) Assess(ctx context.Context, claim, passage string) (Decision, error) {
	s, err := p.Scorer.Score(ctx, claim, passage)
	if err != nil {
		return p.Decide(0), fmt.Errorf("%s scorer: %w", p.Scorer.Name(), err)
	}
	return p.Decide(s), nil
}

// Clamp bounds a score to [0,1]; NaN becomes 0
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
