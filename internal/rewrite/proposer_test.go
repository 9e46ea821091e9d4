package rewrite

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/ppiankov/citeaudit/internal/model"
)

const smithEvidence = "Forests store roughly 30% of global terrestrial carbon, mostly in soils. Boreal stocks are larger."

type stubLLM struct {
	out       string
	err       error
	calls     int
	threshold float64
}

func (s *stubLLM) Rewrite(ctx context.Context, claim, evidence string, markers []string, threshold float64) (string, error) {
	s.calls++
	s.threshold = threshold
	return s.out, s.err
}

func failedClaim(text, statement, evidence string, verdict model.Verdict, supportScore float64) model.AdjudicatedClaim {
	ac := model.AdjudicatedClaim{
		Claim: model.Claim{
			ID:        "claim-1",
			ReviewID:  "review",
			Text:      text,
			Statement: statement,
			Citations: []model.Citation{{Key: "smith-2020", Raw: "Smith, 2020", Type: model.CitationParenthetical}},
		},
		Adjudication: model.Adjudication{
			ClaimID:      "claim-1",
			Verdict:      verdict,
			SupportScore: supportScore,
			Threshold:    0.6,
		},
	}
	if evidence != "" {
		ac.Adjudication.SourceID = "Smith_2020_forest_carbon"
		ac.Adjudication.Evidence = &model.Passage{SourceID: "Smith_2020_forest_carbon", Page: 2, Start: 10, End: 10 + len(evidence), Text: evidence}
	}
	return ac
}

func TestPropose_NumericAndNarrowed(t *testing.T) {
	ac := failedClaim("Forests store 80% of global carbon (Smith, 2020).", "Forests store 80% of global carbon.", smithEvidence, model.VerdictUnsupportedFail, 0.5)

	rw, ok := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
	if !ok {
		t.Fatal("expected a rewrite record")
	}
	want := "Forests store roughly 30% of global terrestrial carbon (Smith, 2020)."
	if rw.Proposed != want {
		t.Errorf("Proposed = %q, want %q", rw.Proposed, want)
	}
	if rw.Method != model.RewriteNumeric || rw.NoRewrite || rw.Marker != "" {
		t.Errorf("unexpected record %+v", rw)
	}
	if rw.EvidenceRef != "Smith_2020_forest_carbon:p2:10-108" {
		t.Errorf("unexpected evidence ref %s", rw.EvidenceRef)
	}
	if rw.Original != ac.Claim.Text || rw.Verdict != model.VerdictUnsupportedFail {
		t.Errorf("original fields not carried: %+v", rw)
	}
}

func TestPropose_HedgedClaimFigure(t *testing.T) {
	ac := failedClaim("Forests store about 80% of global terrestrial carbon (Smith, 2020).", "Forests store about 80% of global terrestrial carbon.", smithEvidence, model.VerdictUnsupportedFail, 0.5)

	rw, _ := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
	want := "Forests store roughly 30% of global terrestrial carbon (Smith, 2020)."
	if rw.Proposed != want {
		t.Errorf("Proposed = %q, want %q", rw.Proposed, want)
	}
}

func TestPropose_NarrowedOnly(t *testing.T) {
	evidence := "Peatlands store global terrestrial carbon in cold soils."
	ac := failedClaim("Peatlands store global carbon (Smith, 2020).", "Peatlands store global carbon.", evidence, model.VerdictUnsupportedFail, 0.55)

	rw, _ := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
	if rw.Proposed != "Peatlands store global terrestrial carbon (Smith, 2020)." || rw.Method != model.RewriteNarrowed {
		t.Errorf("unexpected rewrite %q (%s)", rw.Proposed, rw.Method)
	}
}

func TestPropose_DropsUngroundedClause(t *testing.T) {
	evidence := "Tropical forests store roughly 30% of global terrestrial carbon, mostly in soils."
	ac := failedClaim(
		"Tropical forests store 80% of global carbon in soils, driving regional rainfall (Smith, 2020).",
		"Tropical forests store 80% of global carbon in soils, driving regional rainfall.",
		evidence, model.VerdictUnsupportedFail, 0.45)

	rw, _ := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
	want := "Tropical forests store roughly 30% of global terrestrial carbon in soils (Smith, 2020)."
	if rw.Proposed != want || rw.Method != model.RewriteNumeric {
		t.Errorf("Proposed = %q (%s), want %q", rw.Proposed, rw.Method, want)
	}
	if strings.Contains(rw.Proposed, "rainfall") {
		t.Error("rewrite kept a clause the evidence does not mention")
	}
}

func TestPropose_UngroundedSubjectFallsBackToAttribution(t *testing.T) {
	ac := failedClaim("Peatlands store 80% of global carbon (Smith, 2020).", "Peatlands store 80% of global carbon.", smithEvidence, model.VerdictUnsupportedFail, 0.4)

	rw, _ := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
	want := "According to Smith (2020), forests store roughly 30% of global terrestrial carbon, mostly in soils."
	if rw.Proposed != want || rw.Method != model.RewriteAttribution {
		t.Errorf("Proposed = %q (%s), want %q", rw.Proposed, rw.Method, want)
	}
}

func TestDropUngrounded(t *testing.T) {
	evidence := "Forests store roughly 30% of global terrestrial carbon, mostly in soils."
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"all grounded", "Forests store roughly 30% of carbon, mostly in soils (Smith, 2020).", "Forests store roughly 30% of carbon, mostly in soils (Smith, 2020).", true},
		{"middle clause", "Forests, which regulate rainfall, store carbon (Smith, 2020).", "Forests store carbon (Smith, 2020).", true},
		{"footnote kept", "Forests store carbon; rivers export it [^4].", "Forests store carbon [^4].", true},
		{"leading clause", "Rivers export carbon, mostly in soils (Smith, 2020).", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dropUngrounded(tt.in, evidence)
			if ok != tt.ok || got != tt.want {
				t.Errorf("dropUngrounded(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPropose_AttributionFallback(t *testing.T) {
	evidence := "Forests store a large share of terrestrial carbon."
	ac := failedClaim("Forests store 80% of carbon (Smith, 2020).", "Forests store 80% of carbon.", evidence, model.VerdictUnsupportedFail, 0.5)

	rw, _ := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
	want := "According to Smith (2020), forests store a large share of terrestrial carbon."
	if rw.Proposed != want || rw.Method != model.RewriteAttribution {
		t.Errorf("Proposed = %q (%s), want %q", rw.Proposed, rw.Method, want)
	}
}

func TestPropose_Markers(t *testing.T) {
	tests := []struct {
		name     string
		verdict  model.Verdict
		evidence string
		score    float64
		want     string
	}{
		{name: "unresolved", verdict: model.VerdictUnresolvedFail, want: model.MarkerNoEvidenceLocated},
		{name: "no nearest miss", verdict: model.VerdictUnsupportedFail, want: model.MarkerNoSupportInCorpus},
		{name: "below evidence floor", verdict: model.VerdictUnsupportedFail, evidence: smithEvidence, score: 0.1, want: model.MarkerNoSupportInCorpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := failedClaim("Wetlands doubled (Doe, 1999).", "Wetlands doubled.", tt.evidence, tt.verdict, tt.score)
			rw, ok := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac)
			if !ok {
				t.Fatal("FAIL claims always get a record")
			}
			if !rw.NoRewrite || rw.Marker != tt.want || rw.Proposed != "" || rw.Method != model.RewriteNone {
				t.Errorf("unexpected record %+v", rw)
			}
		})
	}
}

func TestPropose_PassSkipped(t *testing.T) {
	ac := failedClaim("Forests store 30% (Smith, 2020).", "Forests store 30%.", smithEvidence, model.VerdictPass, 1)
	if _, ok := NewProposer(0.6, 0.2, nil).Propose(context.Background(), ac); ok {
		t.Error("PASS claims must not get a rewrite record")
	}
}

func TestPropose_LLM(t *testing.T) {
	ac := failedClaim("Forests store 80% of global carbon (Smith, 2020).", "Forests store 80% of global carbon.", smithEvidence, model.VerdictUnsupportedFail, 0.5)

	accepted := &stubLLM{out: "Forests hold roughly 30% of global terrestrial carbon (Smith, 2020)."}
	rw, _ := NewProposer(0.6, 0.2, nil).WithLLM(accepted).Propose(context.Background(), ac)
	if rw.Method != model.RewriteLLM || rw.Proposed != accepted.out {
		t.Errorf("expected llm rewrite, got %+v", rw)
	}

	var buf bytes.Buffer
	rejected := &stubLLM{err: errors.New("GROUNDING LEAK: figure 45%")}
	rw, _ = NewProposer(0.6, 0.2, log.New(&buf, "", 0)).WithLLM(rejected).Propose(context.Background(), ac)
	if rw.Method != model.RewriteNumeric {
		t.Errorf("expected deterministic fallback, got %s", rw.Method)
	}
	if !strings.Contains(buf.String(), "llm rewrite rejected for claim claim-1") {
		t.Errorf("expected rejection logged, got %q", buf.String())
	}

	unresolved := failedClaim("Wetlands doubled (Doe, 1999).", "Wetlands doubled.", "", model.VerdictUnresolvedFail, 0)
	counting := &stubLLM{out: "anything"}
	NewProposer(0.6, 0.2, nil).WithLLM(counting).Propose(context.Background(), unresolved)
	if counting.calls != 0 {
		t.Error("llm must not be called without evidence")
	}
}

func TestPropose_UsesAdjudicatedThreshold(t *testing.T) {
	ac := failedClaim("Forests store 80% of global carbon (Smith, 2020).", "Forests store 80% of global carbon.", smithEvidence, model.VerdictUnsupportedFail, 0.5)
	ac.Adjudication.Threshold = 0.75

	llm := &stubLLM{out: "Forests hold roughly 30% of global terrestrial carbon (Smith, 2020)."}
	NewProposer(0.6, 0.2, nil).WithLLM(llm).Propose(context.Background(), ac)
	if llm.threshold != 0.75 {
		t.Errorf("llm cutoff = %v, want the claim's 0.75", llm.threshold)
	}

	ac.Adjudication.Threshold = 0
	NewProposer(0.6, 0.2, nil).WithLLM(llm).Propose(context.Background(), ac)
	if llm.threshold != 0.6 {
		t.Errorf("llm cutoff = %v, want configured 0.6 when the claim has none", llm.threshold)
	}
}

func TestProposer_PolicyFor(t *testing.T) {
	p := NewProposer(0.6, 0.2, nil)
	tests := []struct {
		threshold float64
		want      float64
	}{
		{0.8, 0.8},
		{0.6, 0.6},
		{0, 0.6},
		{1.5, 0.6},
	}
	for _, tt := range tests {
		if got := p.policyFor(tt.threshold).Threshold; got != tt.want {
			t.Errorf("policyFor(%v).Threshold = %v, want %v", tt.threshold, got, tt.want)
		}
	}
}

func TestAttributionMarker(t *testing.T) {
	tests := []struct {
		cit  model.Citation
		want string
	}{
		{model.Citation{Raw: "Smith, 2020", Type: model.CitationParenthetical}, "Smith (2020)"},
		{model.Citation{Raw: "Smith et al., 2020, p. 5", Type: model.CitationParenthetical}, "Smith et al. (2020)"},
		{model.Citation{Raw: "Smith (2020)", Type: model.CitationNarrative}, "Smith (2020)"},
		{model.Citation{Raw: "n.d.", Type: model.CitationParenthetical}, "n.d."},
	}
	for _, tt := range tests {
		if got := attributionMarker(tt.cit); got != tt.want {
			t.Errorf("attributionMarker(%q) = %q, want %q", tt.cit.Raw, got, tt.want)
		}
	}
}
