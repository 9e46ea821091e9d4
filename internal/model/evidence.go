package model

import "fmt"

// MatchMethod records how a citation key was resolved
type MatchMethod string

const (
	MatchExact MatchMethod = "exact"
	MatchFuzzy MatchMethod = "fuzzy"
	MatchNone  MatchMethod = "none"
)

// Passage is a candidate span of a source document
type Passage struct {
	SourceID string  `json:"source_id"`
	Page     int     `json:"page"`
	Start    int     `json:"start"` // Offset within the source's Document.Text()
	End      int     `json:"end"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"` // Retrieval relevance in [0,1]
}

// Ref returns a stable reference string for the passage
func (p *Passage) Ref() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%s:p%d:%d-%d", p.SourceID, p.Page, p.Start, p.End)
}

// ResolvedEvidence pairs one citation key with its matched source.
// An empty SourceID is the terminal unresolved state, not an error.
type ResolvedEvidence struct {
	Key        string      `json:"key"`
	SourceID   string      `json:"source_id,omitempty"`
	SourcePath string      `json:"source_path,omitempty"`
	Method     MatchMethod `json:"method"`
	MatchScore float64     `json:"match_score"`
	Passages   []Passage   `json:"passages,omitempty"`
}

// Resolved reports whether a source document was matched
func (e *ResolvedEvidence) Resolved() bool {
	return e.SourceID != ""
}

// EnrichedRecord is the enrich stage output for one claim
type EnrichedRecord struct {
	Claim    Claim              `json:"claim"`
	Evidence []ResolvedEvidence `json:"evidence"`
}

// Primary returns the evidence entry that best represents the claim in the
// registry: the resolved entry with the highest top passage score, earliest
// citation first on ties. Falls back to the first entry when none resolved.
func (r *EnrichedRecord) Primary() *ResolvedEvidence {
	var best *ResolvedEvidence
	bestScore := -1.0
	for i := range r.Evidence {
		ev := &r.Evidence[i]
		if !ev.Resolved() {
			continue
		}
		score := 0.0
		if len(ev.Passages) > 0 {
			score = ev.Passages[0].Score
		}
		if score > bestScore {
			best = ev
			bestScore = score
		}
	}
	if best == nil && len(r.Evidence) > 0 {
		return &r.Evidence[0]
	}
	return best
}
