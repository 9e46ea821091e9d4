package score

import (
	"context"
	"fmt"
)

// LexicalScorer scores support by content-term coverage of the claim,
// scaled by agreement of the claim's figures with the passage and penalised
// when negation polarity differs
type LexicalScorer struct{}

// NewLexicalScorer creates a new lexical scorer
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Name returns the scorer name recorded with each adjudication
func (s *LexicalScorer) Name() string {
	return "lexical"
}

// Breakdown exposes the components of a lexical score
type Breakdown struct {
	Coverage         float64
	NumericAgreement float64
	NegationMismatch bool
	Score            float64
	Formula          string
}

// String renders the breakdown for rationales
func (b Breakdown) String() string {
	return fmt.Sprintf("coverage=%.2f numeric=%.2f negation_mismatch=%t score=%.3f (%s)",
		b.Coverage, b.NumericAgreement, b.NegationMismatch, b.Score, b.Formula)
}

const lexicalFormula = "coverage * (0.5 + 0.5*numeric) * (0.5 if negation differs)"

// Score implements Scorer
func (s *LexicalScorer) Score(ctx context.Context, claim, passage string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Explain(claim, passage).Score, nil
}

// Explain computes the score with its components
func (s *LexicalScorer) Explain(claim, passage string) Breakdown {
	b := Breakdown{Formula: lexicalFormula, NumericAgreement: 1}

	claimTerms := unique(Terms(claim))
	if len(claimTerms) == 0 {
		return b
	}
	have := make(map[string]bool)
	for _, t := range Terms(passage) {
		have[t] = true
	}
	hits := 0
	for _, t := range claimTerms {
		if have[t] {
			hits++
		}
	}
	b.Coverage = float64(hits) / float64(len(claimTerms))

	if figures := Numbers(claim); len(figures) > 0 {
		found := Numbers(passage)
		agree := 0
		for _, n := range figures {
			for _, m := range found {
				if n.Matches(m) {
					agree++
					break
				}
			}
		}
		b.NumericAgreement = float64(agree) / float64(len(figures))
	}

	anchor := BestSentence(claim, passage)
	b.NegationMismatch = Negated(claim) != Negated(anchor)

	score := b.Coverage * (0.5 + 0.5*b.NumericAgreement)
	if b.NegationMismatch {
		score *= 0.5
	}
	b.Score = Clamp(score)
	return b
}

func unique(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
