package adjudicate

import (
	"bytes"
	"context"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/score"
)

const smithPage2 = "Forests store roughly 30% of global terrestrial carbon, mostly in soils."

type tableScorer struct {
	scores map[string]float64
	errs   map[string]error
}

func (s *tableScorer) Name() string { return "table" }

func (s *tableScorer) Score(ctx context.Context, claim, passage string) (float64, error) {
	if err := s.errs[passage]; err != nil {
		return 0, err
	}
	return s.scores[passage], nil
}

type pageLocator map[string]int

func (l pageLocator) LocateQuote(sourceID, quote string) (int, bool) {
	p, ok := l[sourceID]
	return p, ok
}

func boolPtr(b bool) *bool { return &b }

func smithRecord(statement string) model.EnrichedRecord {
	return model.EnrichedRecord{
		Claim: model.Claim{
			ID:        "claim-1",
			ReviewID:  "review",
			Section:   "Results",
			Text:      statement + " (Smith, 2020).",
			Statement: statement + ".",
			Citations: []model.Citation{{Key: "smith-2020", Raw: "Smith, 2020", Type: model.CitationParenthetical}},
		},
		Evidence: []model.ResolvedEvidence{{
			Key:        "smith-2020",
			SourceID:   "Smith_2020_forest_carbon",
			Method:     model.MatchExact,
			MatchScore: 1,
			Passages: []model.Passage{
				{SourceID: "Smith_2020_forest_carbon", Page: 2, Start: 100, End: 172, Text: smithPage2, Score: 0.7},
				{SourceID: "Smith_2020_forest_carbon", Page: 1, Start: 0, End: 60, Text: "Carbon accounting methods vary between inventories.", Score: 0.2},
			},
		}},
	}
}

func lexicalAdjudicator(logger *log.Logger) *Adjudicator {
	return New(score.NewPolicy(score.NewLexicalScorer(), 0.6, 0.05), 0, logger)
}

func TestAdjudicate_SupportedFigure(t *testing.T) {
	adj := lexicalAdjudicator(nil).Adjudicate(context.Background(), smithRecord("Forests store 30% of global terrestrial carbon"))

	if adj.Verdict != model.VerdictPass {
		t.Fatalf("expected PASS, got %s (%s)", adj.Verdict, adj.Rationale)
	}
	if adj.Evidence == nil || adj.Evidence.Page != 2 {
		t.Fatalf("expected page 2 evidence, got %+v", adj.Evidence)
	}
	if adj.SupportScore < adj.Threshold {
		t.Errorf("PASS score %.3f below threshold %.2f", adj.SupportScore, adj.Threshold)
	}
	if adj.SourceID != "Smith_2020_forest_carbon" || adj.Scorer != "lexical" {
		t.Errorf("unexpected source/scorer: %s %s", adj.SourceID, adj.Scorer)
	}
	if len(adj.RiskFlags) != 0 {
		t.Errorf("expected no flags, got %v", adj.RiskFlags)
	}
}

func TestAdjudicate_WrongFigure(t *testing.T) {
	adj := lexicalAdjudicator(nil).Adjudicate(context.Background(), smithRecord("Forests store 80% of global carbon"))

	if adj.Verdict != model.VerdictUnsupportedFail {
		t.Fatalf("expected UNSUPPORTED_FAIL, got %s", adj.Verdict)
	}
	if adj.Evidence == nil || adj.Evidence.Page != 2 {
		t.Fatalf("expected nearest miss on page 2, got %+v", adj.Evidence)
	}
	if adj.SupportScore != 0.5 {
		t.Errorf("expected score 0.5, got %v", adj.SupportScore)
	}
	for _, want := range []string{"0.500", "cutoff 0.60", "numeric=0.00"} {
		if !strings.Contains(adj.Rationale, want) {
			t.Errorf("rationale %q missing %q", adj.Rationale, want)
		}
	}
}

func TestAdjudicate_Unresolved(t *testing.T) {
	rec := model.EnrichedRecord{
		Claim: model.Claim{
			ID:        "claim-2",
			Statement: "Wetlands doubled.",
			Citations: []model.Citation{{Key: "doe-1999", InReferenceList: boolPtr(false)}},
		},
		Evidence: []model.ResolvedEvidence{{Key: "doe-1999", Method: model.MatchNone}},
	}
	adj := lexicalAdjudicator(nil).Adjudicate(context.Background(), rec)

	if adj.Verdict != model.VerdictUnresolvedFail {
		t.Fatalf("expected UNRESOLVED_FAIL, got %s", adj.Verdict)
	}
	if adj.SourceID != "" || adj.Evidence != nil {
		t.Errorf("unresolved verdict must carry no source, got %q %+v", adj.SourceID, adj.Evidence)
	}
	if !strings.Contains(adj.Rationale, "doe-1999") {
		t.Errorf("rationale should name the key: %s", adj.Rationale)
	}
	if !reflect.DeepEqual(adj.RiskFlags, []string{model.FlagNotInReferences}) {
		t.Errorf("unexpected flags %v", adj.RiskFlags)
	}
}

func TestAdjudicate_ScorerErrorCountsAsZero(t *testing.T) {
	rec := smithRecord("Forests store 30% of global terrestrial carbon")
	scorer := &tableScorer{
		scores: map[string]float64{"Carbon accounting methods vary between inventories.": 0.1},
		errs:   map[string]error{smithPage2: errors.New("provider down")},
	}
	var buf bytes.Buffer
	a := New(score.NewPolicy(scorer, 0.6, 0), 0, log.New(&buf, "", 0))

	adj := a.Adjudicate(context.Background(), rec)
	if adj.Verdict != model.VerdictUnsupportedFail {
		t.Fatalf("expected UNSUPPORTED_FAIL, got %s", adj.Verdict)
	}
	if adj.Evidence == nil || adj.Evidence.Page != 1 || adj.SupportScore != 0.1 {
		t.Errorf("expected page 1 nearest miss with 0.1, got %+v %.2f", adj.Evidence, adj.SupportScore)
	}
	if !reflect.DeepEqual(adj.RiskFlags, []string{model.FlagScorerError}) {
		t.Errorf("expected scorer_error flag, got %v", adj.RiskFlags)
	}
	if !strings.Contains(buf.String(), "provider down") {
		t.Errorf("expected scorer error logged, got %q", buf.String())
	}
}

func TestAdjudicate_Ambiguous(t *testing.T) {
	rec := smithRecord("Forests store 30% of global terrestrial carbon")
	scorer := &tableScorer{scores: map[string]float64{smithPage2: 0.62}}
	var buf bytes.Buffer
	a := New(score.NewPolicy(scorer, 0.6, 0.05), 0, log.New(&buf, "", 0))

	adj := a.Adjudicate(context.Background(), rec)
	if adj.Verdict != model.VerdictPass {
		t.Fatalf("expected PASS at fixed cutoff, got %s", adj.Verdict)
	}
	if !reflect.DeepEqual(adj.RiskFlags, []string{model.FlagAmbiguousScore}) {
		t.Errorf("expected ambiguous flag, got %v", adj.RiskFlags)
	}
	if !strings.Contains(buf.String(), "ambiguous: claim claim-1 score 0.620") {
		t.Errorf("expected ambiguity log line, got %q", buf.String())
	}
}

func TestAdjudicate_TieKeepsCitationOrder(t *testing.T) {
	rec := model.EnrichedRecord{
		Claim: model.Claim{
			ID:        "claim-3",
			Statement: "Peat stores carbon.",
			Citations: []model.Citation{{Key: "a-2001"}, {Key: "b-2002"}},
		},
		Evidence: []model.ResolvedEvidence{
			{Key: "a-2001", SourceID: "A_2001", Method: model.MatchExact, Passages: []model.Passage{{SourceID: "A_2001", Page: 1, Text: "first"}}},
			{Key: "b-2002", SourceID: "B_2002", Method: model.MatchExact, Passages: []model.Passage{{SourceID: "B_2002", Page: 1, Text: "second"}}},
		},
	}
	scorer := &tableScorer{scores: map[string]float64{"first": 0.3, "second": 0.3}}

	adj := New(score.NewPolicy(scorer, 0.6, 0), 0, nil).Adjudicate(context.Background(), rec)
	if adj.SourceID != "A_2001" {
		t.Errorf("tie should go to the first citation, got %s", adj.SourceID)
	}
}

func TestAdjudicate_ResolvedWithoutPassages(t *testing.T) {
	rec := model.EnrichedRecord{
		Claim:    model.Claim{ID: "claim-4", Statement: "Something.", Citations: []model.Citation{{Key: "a-2001", Secondary: true}}},
		Evidence: []model.ResolvedEvidence{{Key: "a-2001", SourceID: "A_2001", Method: model.MatchFuzzy, MatchScore: 0.7}},
	}
	adj := lexicalAdjudicator(nil).Adjudicate(context.Background(), rec)

	if adj.Verdict != model.VerdictUnsupportedFail || adj.Evidence != nil || adj.SourceID != "A_2001" {
		t.Fatalf("unexpected adjudication %+v", adj)
	}
	if !reflect.DeepEqual(adj.RiskFlags, []string{model.FlagSecondaryCitation}) {
		t.Errorf("expected secondary flag, got %v", adj.RiskFlags)
	}
}

func TestAdjudicate_PageMismatch(t *testing.T) {
	rec := smithRecord("Forests store 30% of global terrestrial carbon")
	rec.Claim.IsQuote = true
	rec.Claim.Text = `Smith notes forests "store roughly 30% of global terrestrial carbon" (Smith, 2020, p. 5).`
	rec.Claim.Citations[0].StatedPage = "5"

	adj := lexicalAdjudicator(nil).Adjudicate(context.Background(), rec)
	if !contains(adj.RiskFlags, model.FlagPageMismatch) {
		t.Errorf("expected page_mismatch from passage lookup, got %v", adj.RiskFlags)
	}

	adj = lexicalAdjudicator(nil).WithLocator(pageLocator{"Smith_2020_forest_carbon": 5}).Adjudicate(context.Background(), rec)
	if contains(adj.RiskFlags, model.FlagPageMismatch) {
		t.Errorf("quote on stated page must not be flagged, got %v", adj.RiskFlags)
	}

	rec.Claim.Citations[0].StatedPage = "1-3"
	adj = lexicalAdjudicator(nil).Adjudicate(context.Background(), rec)
	if contains(adj.RiskFlags, model.FlagPageMismatch) {
		t.Errorf("quote inside stated range must not be flagged, got %v", adj.RiskFlags)
	}
}

func TestPageRange(t *testing.T) {
	tests := []struct {
		in     string
		lo, hi int
		ok     bool
	}{
		{"12", 12, 12, true},
		{"12-14", 12, 14, true},
		{"14-12", 14, 14, true},
		{"xii", 0, 0, false},
	}
	for _, tt := range tests {
		lo, hi, ok := pageRange(tt.in)
		if lo != tt.lo || hi != tt.hi || ok != tt.ok {
			t.Errorf("pageRange(%q) = %d,%d,%v want %d,%d,%v", tt.in, lo, hi, ok, tt.lo, tt.hi, tt.ok)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
