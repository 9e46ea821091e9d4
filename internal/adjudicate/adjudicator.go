// Package adjudicate assigns exactly one verdict to every claim.
package adjudicate

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/score"
)

// QuoteLocator finds the page of a source that contains a quotation
type QuoteLocator interface {
	LocateQuote(sourceID, quote string) (int, bool)
}

// Adjudicator decides claims against their resolved evidence. It holds no
// mutable state and is safe for concurrent use.
type Adjudicator struct {
	policy  *score.Policy
	timeout time.Duration // Per scoring call, 0 for none
	locator QuoteLocator
	logger  *log.Logger
}

// New creates an adjudicator; a nil logger discards ambiguity lines
func New(policy *score.Policy, timeout time.Duration, logger *log.Logger) *Adjudicator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Adjudicator{policy: policy, timeout: timeout, logger: logger}
}

// WithLocator enables page checks against full source text. Without one,
// quotes are only looked up in the retrieved passages.
func (a *Adjudicator) WithLocator(l QuoteLocator) *Adjudicator {
	a.locator = l
	return a
}

type candidate struct {
	evidence *model.ResolvedEvidence
	passage  *model.Passage
	decision score.Decision
}

// Adjudicate returns the verdict for one enriched claim
func (a *Adjudicator) Adjudicate(ctx context.Context, rec model.EnrichedRecord) model.Adjudication {
	claim := rec.Claim
	adj := model.Adjudication{
		ClaimID:   claim.ID,
		ReviewID:  claim.ReviewID,
		Section:   claim.Section,
		Threshold: a.policy.Threshold,
		Scorer:    a.policy.Scorer.Name(),
	}
	flags := make(map[string]bool)

	for _, cit := range claim.Citations {
		if cit.Secondary {
			flags[model.FlagSecondaryCitation] = true
		}
		if cit.InReferenceList != nil && !*cit.InReferenceList {
			flags[model.FlagNotInReferences] = true
		}
	}

	var resolved []*model.ResolvedEvidence
	for i := range rec.Evidence {
		if rec.Evidence[i].Resolved() {
			resolved = append(resolved, &rec.Evidence[i])
		}
	}

	if len(resolved) == 0 {
		adj.Verdict = model.VerdictUnresolvedFail
		adj.Rationale = fmt.Sprintf("no source document matched citation keys [%s]", strings.Join(claim.Keys(), ", "))
		adj.RiskFlags = sortedFlags(flags)
		return adj
	}

	var best *candidate
	for _, ev := range resolved {
		for i := range ev.Passages {
			p := &ev.Passages[i]
			d, err := a.assess(ctx, claim.Statement, p.Text)
			if err != nil {
				flags[model.FlagScorerError] = true
				a.logger.Printf("scorer error on claim %s passage %s: %v", claim.ID, p.Ref(), err)
			}
			if best == nil || d.Score > best.decision.Score {
				best = &candidate{evidence: ev, passage: p, decision: d}
			}
		}
	}

	if a.pageMismatch(claim, rec.Evidence) {
		flags[model.FlagPageMismatch] = true
	}

	if best == nil {
		adj.Verdict = model.VerdictUnsupportedFail
		adj.SourceID = resolved[0].SourceID
		adj.Rationale = fmt.Sprintf("source %s matched but no passage shares content with the claim; cutoff %.2f",
			resolved[0].SourceID, a.policy.Threshold)
		adj.RiskFlags = sortedFlags(flags)
		return adj
	}

	p := *best.passage
	adj.SourceID = best.evidence.SourceID
	adj.Evidence = &p
	adj.SupportScore = best.decision.Score

	if best.decision.Support {
		adj.Verdict = model.VerdictPass
		adj.Rationale = fmt.Sprintf("support %.3f >= cutoff %.2f (%s) at %s", best.decision.Score, a.policy.Threshold, adj.Scorer, p.Ref())
	} else {
		adj.Verdict = model.VerdictUnsupportedFail
		adj.Rationale = fmt.Sprintf("best support %.3f < cutoff %.2f (%s); nearest miss %s", best.decision.Score, a.policy.Threshold, adj.Scorer, p.Ref())
	}
	if lx, ok := a.policy.Scorer.(*score.LexicalScorer); ok {
		adj.Rationale += "; " + lx.Explain(claim.Statement, p.Text).String()
	}

	if best.decision.Ambiguous {
		flags[model.FlagAmbiguousScore] = true
		a.logger.Printf("ambiguous: claim %s score %.3f within %.2f of cutoff %.2f -> %s",
			claim.ID, best.decision.Score, a.policy.Margin, a.policy.Threshold, adj.Verdict)
	}

	adj.RiskFlags = sortedFlags(flags)
	return adj
}

func (a *Adjudicator) assess(ctx context.Context, claim, passage string) (score.Decision, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.policy.Assess(ctx, claim, passage)
}

var quotedRE = regexp.MustCompile(`["“]([^"“”]{8,})["”]`)

// pageMismatch reports a quotation found on a page outside the stated page
// range of a citation that states one
func (a *Adjudicator) pageMismatch(claim model.Claim, evidence []model.ResolvedEvidence) bool {
	if !claim.IsQuote {
		return false
	}
	var quotes []string
	for _, m := range quotedRE.FindAllStringSubmatch(claim.Text, -1) {
		quotes = append(quotes, strings.TrimSpace(m[1]))
	}
	if len(quotes) == 0 {
		return false
	}

	byKey := make(map[string]*model.ResolvedEvidence, len(evidence))
	for i := range evidence {
		byKey[evidence[i].Key] = &evidence[i]
	}

	for _, cit := range claim.Citations {
		if cit.StatedPage == "" {
			continue
		}
		lo, hi, ok := pageRange(cit.StatedPage)
		ev := byKey[cit.Key]
		if !ok || ev == nil || !ev.Resolved() {
			continue
		}
		for _, q := range quotes {
			page, found := a.locate(ev, q)
			if found && page > 0 && (page < lo || page > hi) {
				return true
			}
		}
	}
	return false
}

func (a *Adjudicator) locate(ev *model.ResolvedEvidence, quote string) (int, bool) {
	if a.locator != nil {
		return a.locator.LocateQuote(ev.SourceID, quote)
	}
	q := strings.ToLower(strings.Join(strings.Fields(quote), " "))
	for _, p := range ev.Passages {
		if strings.Contains(strings.ToLower(strings.Join(strings.Fields(p.Text), " ")), q) {
			return p.Page, true
		}
	}
	return 0, false
}

// pageRange parses "12" or "12-14"
func pageRange(s string) (int, int, bool) {
	from, to, isRange := strings.Cut(s, "-")
	lo, err := strconv.Atoi(from)
	if err != nil {
		return 0, 0, false
	}
	if !isRange {
		return lo, lo, true
	}
	hi, err := strconv.Atoi(to)
	if err != nil || hi < lo {
		return lo, lo, true
	}
	return lo, hi, true
}

func sortedFlags(flags map[string]bool) []string {
	if len(flags) == 0 {
		return nil
	}
	out := make([]string, 0, len(flags))
	for f := range flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
