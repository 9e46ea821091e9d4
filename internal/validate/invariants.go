// Package validate checks the output invariants of the adjudicate and
// rewrite stages before anything is committed to disk.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/citeaudit/internal/model"
)

// ErrInvariant is wrapped by every error returned from Check
var ErrInvariant = errors.New("invariant violation")

// Rule names
const (
	RuleOneVerdict      = "one_verdict_per_claim"
	RuleVerdictEnum     = "valid_verdict"
	RuleUnresolvedBare  = "unresolved_has_no_source"
	RulePassEvidence    = "pass_has_supporting_passage"
	RuleOneRewrite      = "one_rewrite_per_fail"
	RuleRewriteOrMarker = "rewrite_or_marker"
)

// Violation is one broken invariant
type Violation struct {
	ClaimID string
	Rule    string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: claim %s: %s", v.Rule, v.ClaimID, v.Detail)
}

const maxReported = 5

// Check validates adjudications against the enriched claims they came from
// and rewrites against the adjudications. Either claims or rewrites may be
// nil to skip that side.
func Check(claims []model.Claim, adjudicated []model.AdjudicatedClaim, rewrites []model.Rewrite) error {
	var vs []Violation
	vs = append(vs, CheckAdjudications(claims, adjudicated)...)
	if rewrites != nil {
		vs = append(vs, CheckRewrites(adjudicated, rewrites)...)
	}
	if len(vs) == 0 {
		return nil
	}

	lines := make([]string, 0, maxReported)
	for i, v := range vs {
		if i == maxReported {
			lines = append(lines, fmt.Sprintf("... and %d more", len(vs)-maxReported))
			break
		}
		lines = append(lines, v.String())
	}
	return fmt.Errorf("%w: %d found: %s", ErrInvariant, len(vs), strings.Join(lines, "; "))
}

// CheckAdjudications checks one valid verdict per claim
func CheckAdjudications(claims []model.Claim, adjudicated []model.AdjudicatedClaim) []Violation {
	var vs []Violation

	seen := make(map[string]int, len(adjudicated))
	for _, ac := range adjudicated {
		adj := ac.Adjudication
		seen[adj.ClaimID]++
		if seen[adj.ClaimID] == 2 {
			vs = append(vs, Violation{adj.ClaimID, RuleOneVerdict, "adjudicated more than once"})
		}
		if adj.ClaimID != ac.Claim.ID {
			vs = append(vs, Violation{adj.ClaimID, RuleOneVerdict, fmt.Sprintf("attached to claim %s", ac.Claim.ID)})
		}

		switch {
		case !adj.Verdict.Valid():
			vs = append(vs, Violation{adj.ClaimID, RuleVerdictEnum, fmt.Sprintf("unknown verdict %q", adj.Verdict)})
		case adj.Verdict == model.VerdictUnresolvedFail:
			if adj.SourceID != "" || adj.Evidence != nil {
				vs = append(vs, Violation{adj.ClaimID, RuleUnresolvedBare, fmt.Sprintf("carries source %q", adj.SourceID)})
			}
		case adj.Verdict == model.VerdictPass:
			if adj.Evidence == nil {
				vs = append(vs, Violation{adj.ClaimID, RulePassEvidence, "no evidence passage"})
			} else if adj.SupportScore < adj.Threshold {
				vs = append(vs, Violation{adj.ClaimID, RulePassEvidence,
					fmt.Sprintf("score %.3f below threshold %.2f", adj.SupportScore, adj.Threshold)})
			}
		}
	}

	if claims != nil {
		want := make(map[string]bool, len(claims))
		for _, c := range claims {
			want[c.ID] = true
			if seen[c.ID] == 0 {
				vs = append(vs, Violation{c.ID, RuleOneVerdict, "no adjudication"})
			}
		}
		for _, ac := range adjudicated {
			if !want[ac.Adjudication.ClaimID] {
				vs = append(vs, Violation{ac.Adjudication.ClaimID, RuleOneVerdict, "adjudication for unknown claim"})
			}
		}
	}

	return vs
}

// CheckRewrites checks exactly one well-formed rewrite record per FAIL verdict
func CheckRewrites(adjudicated []model.AdjudicatedClaim, rewrites []model.Rewrite) []Violation {
	var vs []Violation

	verdicts := make(map[string]model.Verdict, len(adjudicated))
	for _, ac := range adjudicated {
		verdicts[ac.Adjudication.ClaimID] = ac.Adjudication.Verdict
	}

	count := make(map[string]int, len(rewrites))
	for _, rw := range rewrites {
		count[rw.ClaimID]++
		verdict, ok := verdicts[rw.ClaimID]
		switch {
		case !ok:
			vs = append(vs, Violation{rw.ClaimID, RuleOneRewrite, "rewrite for unknown claim"})
		case !verdict.IsFail():
			vs = append(vs, Violation{rw.ClaimID, RuleOneRewrite, fmt.Sprintf("rewrite for %s claim", verdict)})
		case count[rw.ClaimID] == 2:
			vs = append(vs, Violation{rw.ClaimID, RuleOneRewrite, "more than one rewrite"})
		}

		hasText := strings.TrimSpace(rw.Proposed) != ""
		switch {
		case hasText && rw.NoRewrite:
			vs = append(vs, Violation{rw.ClaimID, RuleRewriteOrMarker, "both rewrite text and no-rewrite flag"})
		case !hasText && !rw.NoRewrite:
			vs = append(vs, Violation{rw.ClaimID, RuleRewriteOrMarker, "neither rewrite text nor marker"})
		case rw.NoRewrite && rw.Marker != model.MarkerNoEvidenceLocated && rw.Marker != model.MarkerNoSupportInCorpus:
			vs = append(vs, Violation{rw.ClaimID, RuleRewriteOrMarker, fmt.Sprintf("unknown marker %q", rw.Marker)})
		}
	}

	for _, ac := range adjudicated {
		id := ac.Adjudication.ClaimID
		if ac.Adjudication.Verdict.IsFail() && count[id] == 0 {
			vs = append(vs, Violation{id, RuleOneRewrite, "FAIL claim without rewrite record"})
		}
	}

	return vs
}
