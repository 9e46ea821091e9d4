// Package rewrite proposes evidence-bounded replacements for failed claims.
package rewrite

import (
	"context"
	"io"
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/citeaudit/internal/citekey"
	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/score"
)

// LLMRewriter produces a grounded rewrite or an error when it cannot.
// threshold is the support cutoff the rewrite must reach.
type LLMRewriter interface {
	Rewrite(ctx context.Context, claim, evidence string, markers []string, threshold float64) (string, error)
}

// Proposer turns FAIL adjudications into rewrite records
type Proposer struct {
	policy      *score.Policy // Lexical policy for claims adjudicated without a cutoff
	minEvidence float64
	llm         LLMRewriter
	logger      *log.Logger
}

// NewProposer creates a proposer. threshold is the lexical support cutoff a
// candidate must reach when its adjudication carries none; minEvidence is the
// nearest-miss floor.
func NewProposer(threshold, minEvidence float64, logger *log.Logger) *Proposer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Proposer{
		policy:      score.NewPolicy(score.NewLexicalScorer(), threshold, 0),
		minEvidence: minEvidence,
		logger:      logger,
	}
}

// WithLLM enables LLM rewrites; their output is used only when grounded
func (p *Proposer) WithLLM(r LLMRewriter) *Proposer {
	p.llm = r
	return p
}

// Propose returns the rewrite record for a FAIL claim and false for PASS
func (p *Proposer) Propose(ctx context.Context, ac model.AdjudicatedClaim) (model.Rewrite, bool) {
	adj := ac.Adjudication
	if !adj.Verdict.IsFail() {
		return model.Rewrite{}, false
	}

	rw := model.Rewrite{
		ClaimID:  ac.Claim.ID,
		ReviewID: ac.Claim.ReviewID,
		Verdict:  adj.Verdict,
		Original: ac.Claim.Text,
		Method:   model.RewriteNone,
	}

	if adj.Verdict == model.VerdictUnresolvedFail {
		return noRewrite(rw, model.MarkerNoEvidenceLocated), true
	}
	if adj.Evidence == nil || adj.SupportScore < p.minEvidence {
		return noRewrite(rw, model.MarkerNoSupportInCorpus), true
	}

	evidence := adj.Evidence.Text
	rw.EvidenceRef = adj.Evidence.Ref()
	policy := p.policyFor(adj.Threshold)

	if p.llm != nil {
		out, err := p.llm.Rewrite(ctx, ac.Claim.Text, evidence, markers(ac.Claim), policy.Threshold)
		if err == nil {
			rw.Proposed = out
			rw.Method = model.RewriteLLM
			return rw, true
		}
		p.logger.Printf("llm rewrite rejected for claim %s: %v", ac.Claim.ID, err)
	}

	if text, method, ok := deterministic(ctx, policy, ac.Claim, evidence); ok {
		rw.Proposed = text
		rw.Method = method
		return rw, true
	}

	if text, ok := attribution(ac.Claim, adj, evidence); ok {
		rw.Proposed = text
		rw.Method = model.RewriteAttribution
		return rw, true
	}

	rw.EvidenceRef = ""
	return noRewrite(rw, model.MarkerNoSupportInCorpus), true
}

// policyFor returns the lexical policy at the cutoff the claim was judged by
func (p *Proposer) policyFor(threshold float64) *score.Policy {
	if threshold <= 0 || threshold > 1 || threshold == p.policy.Threshold {
		return p.policy
	}
	return score.NewPolicy(p.policy.Scorer, threshold, 0)
}

func noRewrite(rw model.Rewrite, marker string) model.Rewrite {
	rw.NoRewrite = true
	rw.Marker = marker
	rw.Method = model.RewriteNone
	return rw
}

// deterministic bounds the claim's figures and scope to the evidence, drops
// trailing clauses the evidence does not mention and keeps the result only
// if it passes policy
func deterministic(ctx context.Context, policy *score.Policy, claim model.Claim, evidence string) (string, model.RewriteMethod, bool) {
	text := claim.Text
	protected := protectedSpans(text)
	anchor := score.BestSentence(claim.Statement, evidence)

	numEdits, ok := numericEdits(text, protected, anchor, evidence)
	if !ok {
		return "", "", false
	}
	edits := append(numEdits, narrowEdits(text, protected, evidence)...)
	if len(edits) == 0 {
		return "", "", false
	}

	candidate, ok := dropUngrounded(applyEdits(text, edits), evidence)
	if !ok {
		return "", "", false
	}
	d, err := policy.Assess(ctx, stripProtected(candidate), evidence)
	if err != nil || !d.Support {
		return "", "", false
	}

	method := model.RewriteNarrowed
	if len(numEdits) > 0 {
		method = model.RewriteNumeric
	}
	return candidate, method, true
}

type edit struct {
	start, end int
	text       string
}

var (
	markerRE = regexp.MustCompile(`\([^()]*\b\d{4}[a-z]?\b[^()]*\)|\[\^[^\]\s]+\]`)
	wordRE   = regexp.MustCompile(`[A-Za-z][A-Za-z'-]*`)
	yearRE   = regexp.MustCompile(`^(1[5-9]|20)\d{2}$`)
	spacesRE = regexp.MustCompile(`\s+`)
)

// protectedSpans are the citation markers, which a rewrite never touches
func protectedSpans(text string) [][2]int {
	var out [][2]int
	for _, m := range markerRE.FindAllStringIndex(text, -1) {
		out = append(out, [2]int{m[0], m[1]})
	}
	return out
}

func inSpans(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

func stripProtected(text string) string {
	return markerRE.ReplaceAllString(text, "")
}

// numericEdits replaces each claim figure absent from the evidence with the
// evidence's next unused figure of the same unit, carrying its hedge. It
// fails when a figure has no counterpart.
func numericEdits(text string, protected [][2]int, anchor, evidence string) ([]edit, bool) {
	evNums := append(withSource(score.Numbers(anchor), anchor), withSource(score.Numbers(evidence), evidence)...)
	used := make(map[string]bool)

	var edits []edit
	for _, n := range score.Numbers(text) {
		if inSpans(protected, n.Start, n.End) {
			continue
		}
		if present(n, evNums) {
			continue
		}

		var pick *sourcedNumber
		for i := range evNums {
			e := &evNums[i]
			if e.Unit != n.Unit || used[e.Value+e.Unit] {
				continue
			}
			if isYear(e.Number) != isYear(n) {
				continue
			}
			pick = e
			break
		}
		if pick == nil {
			return nil, false
		}
		used[pick.Value+pick.Unit] = true

		start := n.Start
		if h := n.Hedge(text); h != "" {
			if i := strings.LastIndex(strings.ToLower(text[:n.Start]), strings.ToLower(h)); i >= 0 {
				start = i
			}
		}
		repl := pick.src[pick.Start:pick.End]
		if h := pick.Hedge(pick.src); h != "" {
			repl = strings.ToLower(h) + " " + repl
		}
		edits = append(edits, edit{start: start, end: n.End, text: repl})
	}
	return edits, true
}

type sourcedNumber struct {
	score.Number
	src string
}

func withSource(nums []score.Number, src string) []sourcedNumber {
	out := make([]sourcedNumber, len(nums))
	for i, n := range nums {
		out[i] = sourcedNumber{Number: n, src: src}
	}
	return out
}

func present(n score.Number, nums []sourcedNumber) bool {
	for _, e := range nums {
		if n.Matches(e.Number) {
			return true
		}
	}
	return false
}

func isYear(n score.Number) bool {
	return n.Unit == "" && yearRE.MatchString(n.Value)
}

// narrowEdits inserts the single qualifier the evidence places between two
// adjacent claim words that never appear adjacent in the evidence
func narrowEdits(text string, protected [][2]int, evidence string) []edit {
	evWords := lowerWords(evidence)
	adjacent := make(map[string]bool)
	for i := 0; i+1 < len(evWords); i++ {
		adjacent[evWords[i]+" "+evWords[i+1]] = true
	}

	spans := wordRE.FindAllStringIndex(text, -1)
	var edits []edit
	for i := 0; i+1 < len(spans); i++ {
		a, b := spans[i], spans[i+1]
		if inSpans(protected, a[0], b[1]) || strings.TrimSpace(text[a[1]:b[0]]) != "" {
			continue
		}
		w1, w2 := strings.ToLower(text[a[0]:a[1]]), strings.ToLower(text[b[0]:b[1]])
		if isStopword(w1) || isStopword(w2) || adjacent[w1+" "+w2] {
			continue
		}
		for j := 0; j+2 < len(evWords); j++ {
			if evWords[j] == w1 && evWords[j+2] == w2 && !isStopword(evWords[j+1]) {
				edits = append(edits, edit{start: a[1], end: a[1], text: " " + evWords[j+1]})
				break
			}
		}
	}
	return edits
}

func lowerWords(s string) []string {
	words := wordRE.FindAllString(s, -1)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

func isStopword(w string) bool {
	return len(score.Terms(w)) == 0
}

// applyEdits applies non-overlapping edits from the end of text backwards
func applyEdits(text string, edits []edit) string {
	sorted := make([]edit, len(edits))
	copy(sorted, edits)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].start > sorted[j-1].start; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for _, e := range sorted {
		text = text[:e.start] + e.text + text[e.end:]
	}
	return text
}

var spaceBeforePunctRE = regexp.MustCompile(`\s+([.,;!?])`)

// dropUngrounded removes the clauses after the first whose content words are
// absent from the evidence, keeping their citation markers. It fails when the
// leading clause itself asserts something the evidence does not.
func dropUngrounded(text, evidence string) (string, bool) {
	body := strings.TrimRightFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || unicode.IsSpace(r)
	})
	terminal := strings.TrimSpace(text[len(body):])
	protected := protectedSpans(body)

	var bounds []int
	for i := 0; i < len(body); i++ {
		if (body[i] == ',' || body[i] == ';') && !inSpans(protected, i, i+1) {
			bounds = append(bounds, i)
		}
	}
	bounds = append(bounds, len(body))

	var b strings.Builder
	start := 0
	dropped := false
	for n, end := range bounds {
		// Each clause after the first starts with its separator
		clause := body[start:end]
		start = end

		grounded := len(score.Ungrounded(stripProtected(clause), evidence)) == 0
		switch {
		case grounded && dropped:
			b.WriteString(" " + clause[1:])
		case grounded:
			b.WriteString(clause)
		case n == 0:
			return "", false
		default:
			for _, m := range protectedSpans(clause) {
				b.WriteString(" " + clause[m[0]:m[1]])
			}
		}
		dropped = !grounded
	}

	out := spacesRE.ReplaceAllString(b.String(), " ")
	out = spaceBeforePunctRE.ReplaceAllString(strings.TrimSpace(out), "$1")
	return out + terminal, true
}

var rawAuthorYearRE = regexp.MustCompile(`^(.*?)[,\s]+((?:1[5-9]|20)\d{2}[a-z]?)\b`)

// attribution restates the best evidence sentence under the citation that
// resolved to the evidence source
func attribution(claim model.Claim, adj model.Adjudication, evidence string) (string, bool) {
	sentence := strings.TrimSpace(score.BestSentence(claim.Statement, evidence))
	if sentence == "" {
		return "", false
	}
	sentence = strings.TrimRight(sentence, ".!?;: ")
	if first, size := utf8.DecodeRuneInString(sentence); unicode.IsUpper(first) {
		if next, _ := utf8.DecodeRuneInString(sentence[size:]); unicode.IsLower(next) {
			sentence = string(unicode.ToLower(first)) + sentence[size:]
		}
	}

	cit, ok := attributedCitation(claim, adj.SourceID)
	if !ok {
		return "", false
	}
	if cit.Type == model.CitationFootnote {
		return "According to the cited source, " + sentence + ". " + cit.Raw, true
	}
	return "According to " + attributionMarker(cit) + ", " + sentence + ".", true
}

func attributedCitation(claim model.Claim, sourceID string) (model.Citation, bool) {
	if len(claim.Citations) == 0 {
		return model.Citation{}, false
	}
	work := citekey.Parse(sourceID).Work()
	for _, cit := range claim.Citations {
		if citekey.Parse(cit.Key).Work() == work {
			return cit, true
		}
	}
	return claim.Citations[0], true
}

func attributionMarker(cit model.Citation) string {
	raw := strings.TrimSpace(cit.Raw)
	if cit.Type == model.CitationNarrative || cit.Type == model.CitationSecondaryNarrative {
		return raw
	}
	if m := rawAuthorYearRE.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1]) + " (" + m[2] + ")"
	}
	return raw
}

func markers(claim model.Claim) []string {
	return markerRE.FindAllString(claim.Text, -1)
}
