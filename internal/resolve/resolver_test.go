package resolve

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/citeaudit/internal/citekey"
	"github.com/ppiankov/citeaudit/internal/model"
)

func sourceDoc(id string, pages ...string) *model.Document {
	blocks := make([]model.Block, len(pages))
	for i, p := range pages {
		blocks[i] = model.Block{Text: p, Page: i + 1}
	}
	return model.NewDocument(id, "sources/"+id+".pdf", "sha256:"+id, model.KindSource, blocks, nil)
}

func testIndex() *Index {
	return NewIndex([]*model.Document{
		sourceDoc("Smith_2020_forest_carbon",
			"Introduction. Carbon accounting methods vary between inventories.",
			"Forests store roughly 30% of global terrestrial carbon, mostly in soils.",
			"Boreal peatlands are also important."),
		sourceDoc("Mueller_2018", "Grassland soils hold large carbon stocks."),
		sourceDoc("Doe_2018_wetlands", "Wetlands emit methane."),
		sourceDoc("notes", "Unrelated working notes."),
	}, Options{TopK: 2, MinMatchScore: 0.6})
}

func TestResolver_MatchExact(t *testing.T) {
	r := NewResolver(testIndex())
	m := r.Match("smith-2020-p5")
	if m.Source == nil || m.Source.ID != "Smith_2020_forest_carbon" {
		t.Fatalf("expected Smith_2020_forest_carbon, got %+v", m)
	}
	if m.Method != model.MatchExact || m.Score != 1 {
		t.Errorf("expected exact match with score 1, got %s %.2f", m.Method, m.Score)
	}
}

func TestResolver_MatchExactTieBreak(t *testing.T) {
	idx := NewIndex([]*model.Document{
		sourceDoc("smith_2020_b", "Text b."),
		sourceDoc("smith_2020_a", "Text a."),
	}, Options{})
	m := NewResolver(idx).Match("smith-2020")
	if m.Source == nil || m.Source.ID != "smith_2020_a" {
		t.Errorf("expected smallest source id on ties, got %+v", m.Source)
	}
}

func TestResolver_MatchFuzzy(t *testing.T) {
	r := NewResolver(testIndex())
	m := r.Match("muller-2018")
	if m.Source == nil || m.Source.ID != "Mueller_2018" {
		t.Fatalf("expected transliterated match, got %+v", m)
	}
	if m.Method != model.MatchFuzzy {
		t.Errorf("expected fuzzy method, got %s", m.Method)
	}
	if m.Score < 0.6 || m.Score > 1 {
		t.Errorf("fuzzy score out of range: %.2f", m.Score)
	}
}

func TestResolver_YearGate(t *testing.T) {
	r := NewResolver(testIndex())
	if m := r.Match("smith-2019"); m.Source != nil {
		t.Errorf("different year must not match, got %s", m.Source.ID)
	}
}

func TestResolver_Unresolved(t *testing.T) {
	r := NewResolver(testIndex())
	m := r.Match("doe-1999")
	if m.Source != nil || m.Method != model.MatchNone {
		t.Errorf("expected unresolved, got %+v", m)
	}
	if m := r.Match(""); m.Source != nil {
		t.Error("empty key must not resolve")
	}
}

func TestFuzzyScore(t *testing.T) {
	src := indexSource(sourceDoc("van_der_Berg_2019_soils", "x"), Options{}.withDefaults())
	if s := FuzzyScore(citekey.Parse("berg-2019"), src); s < 0.999 {
		t.Errorf("surname token with year should score 1, got %.2f", s)
	}
	if s := FuzzyScore(citekey.Parse("berg-2020"), src); s != 0 {
		t.Errorf("year mismatch should score 0, got %.2f", s)
	}
	if s := FuzzyScore(citekey.Parse("jones-2019"), src); s >= 0.6 {
		t.Errorf("wrong author should not pass, got %.2f", s)
	}
}

func TestResolver_Passages(t *testing.T) {
	idx := testIndex()
	r := NewResolver(idx)
	src := idx.Sources()[2]
	if src.ID != "Smith_2020_forest_carbon" {
		t.Fatalf("sources should be sorted by id, got %s", src.ID)
	}

	passages := r.Passages(src, "Forests store 30% of global carbon.")
	if len(passages) == 0 {
		t.Fatal("expected passages")
	}
	if len(passages) > 2 {
		t.Errorf("expected at most top_k=2 passages, got %d", len(passages))
	}
	top := passages[0]
	if top.Page != 2 || !strings.Contains(top.Text, "roughly 30%") {
		t.Errorf("expected page 2 passage first, got %+v", top)
	}
	for i := 1; i < len(passages); i++ {
		if passages[i].Score > passages[i-1].Score {
			t.Error("passages must be ordered by score desc")
		}
	}

	text := sourceDoc("Smith_2020_forest_carbon",
		"Introduction. Carbon accounting methods vary between inventories.",
		"Forests store roughly 30% of global terrestrial carbon, mostly in soils.",
		"Boreal peatlands are also important.").Text()
	if text[top.Start:top.End] != top.Text {
		t.Error("passage offsets must address the source text")
	}

	again := r.Passages(src, "Forests store 30% of global carbon.")
	again[0].Text = "mutated"
	if r.Passages(src, "Forests store 30% of global carbon.")[0].Text == "mutated" {
		t.Error("memoised passages must not be shared with callers")
	}
}

func TestWindows(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	block := model.Block{Text: strings.Join(words, " "), Page: 3, Offset: 10}

	got := windows(block, 180, 90)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	if !strings.HasPrefix(got[0].Text, "w0 ") || !strings.HasSuffix(got[0].Text, " w179") {
		t.Errorf("unexpected first window bounds")
	}
	if !strings.HasSuffix(got[1].Text, " w199") {
		t.Errorf("final window should reach the end of the page")
	}
	if got[0].Start != 10 || got[0].Page != 3 {
		t.Errorf("window should carry page and document offset, got %+v", got[0])
	}

	short := windows(model.Block{Text: "only three words"}, 180, 90)
	if len(short) != 1 || short[0].Text != "only three words" {
		t.Errorf("short page should be one window, got %+v", short)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(testIndex())
	claim := model.Claim{
		Statement: "Forests store 30% of global carbon.",
		Citations: []model.Citation{{Key: "smith-2020"}, {Key: "doe-1999"}},
	}

	evidence, err := r.Resolve(context.Background(), claim)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(evidence) != 2 {
		t.Fatalf("expected evidence per citation, got %d", len(evidence))
	}
	if !evidence[0].Resolved() || len(evidence[0].Passages) == 0 {
		t.Errorf("expected smith-2020 resolved with passages, got %+v", evidence[0])
	}
	if evidence[1].Resolved() || evidence[1].Method != model.MatchNone || evidence[1].SourceID != "" {
		t.Errorf("expected doe-1999 unresolved, got %+v", evidence[1])
	}
}

func TestResolver_ResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(testIndex()).Resolve(ctx, model.Claim{Citations: []model.Citation{{Key: "smith-2020"}}})
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestIndex_LocateQuote(t *testing.T) {
	idx := testIndex()

	tests := []struct {
		name     string
		sourceID string
		quote    string
		wantPage int
		wantOK   bool
	}{
		{name: "found on page 2", sourceID: "Smith_2020_forest_carbon", quote: "store   ROUGHLY 30% of global", wantPage: 2, wantOK: true},
		{name: "curly quotes folded", sourceID: "Smith_2020_forest_carbon", quote: "Boreal peatlands are also important", wantPage: 3, wantOK: true},
		{name: "absent", sourceID: "Smith_2020_forest_carbon", quote: "tropical forests", wantOK: false},
		{name: "unknown source", sourceID: "nope", quote: "forests", wantOK: false},
		{name: "empty quote", sourceID: "Smith_2020_forest_carbon", quote: "  ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, ok := idx.LocateQuote(tt.sourceID, tt.quote)
			if ok != tt.wantOK || page != tt.wantPage {
				t.Errorf("LocateQuote = (%d, %v), want (%d, %v)", page, ok, tt.wantPage, tt.wantOK)
			}
		})
	}

	if idx.Source("Mueller_2018") == nil || idx.Source("Mueller") != nil {
		t.Error("Source lookup by exact id failed")
	}
}
