package model

// Verdict classifies how well a claim is supported by its cited source
type Verdict string

const (
	VerdictPass            Verdict = "PASS"
	VerdictUnsupportedFail Verdict = "UNSUPPORTED_FAIL" // Source found, passage does not support the claim
	VerdictUnresolvedFail  Verdict = "UNRESOLVED_FAIL"  // No matching source in the corpus
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictPass, VerdictUnsupportedFail, VerdictUnresolvedFail:
		return true
	}
	return false
}

// IsFail reports whether the verdict needs a rewrite record
func (v Verdict) IsFail() bool {
	return v == VerdictUnsupportedFail || v == VerdictUnresolvedFail
}

// Risk flags attached to adjudications
const (
	FlagAmbiguousScore    = "ambiguous_score"
	FlagSecondaryCitation = "secondary_citation"
	FlagNotInReferences   = "not_in_reference_list"
	FlagPageMismatch      = "page_mismatch"
	FlagScorerError       = "scorer_error"
)

// Adjudication is the single verdict for a claim
type Adjudication struct {
	ClaimID      string   `json:"claim_id"`
	ReviewID     string   `json:"review_id"`
	Section      string   `json:"section"`
	Verdict      Verdict  `json:"verdict"`
	SourceID     string   `json:"source_id,omitempty"` // Source of Evidence, empty for UNRESOLVED_FAIL
	Evidence     *Passage `json:"evidence,omitempty"`  // Justifying passage (PASS) or nearest miss (UNSUPPORTED_FAIL)
	SupportScore float64  `json:"support_score"`
	Threshold    float64  `json:"threshold"`
	Scorer       string   `json:"scorer"`
	Rationale    string   `json:"rationale"`
	RiskFlags    []string `json:"risk_flags,omitempty"`
}

// AdjudicatedClaim is the adjudicate stage output for one claim
type AdjudicatedClaim struct {
	Claim        Claim        `json:"claim"`
	Adjudication Adjudication `json:"adjudication"`
}

// Rewrite markers
const (
	MarkerNoEvidenceLocated = "no-rewrite: no evidence located"
	MarkerNoSupportInCorpus = "no-rewrite: no supporting evidence found in corpus"
)

// RewriteMethod records how a proposed rewrite was produced
type RewriteMethod string

const (
	RewriteNumeric     RewriteMethod = "numeric"     // Numbers and qualifiers bounded to the evidence
	RewriteNarrowed    RewriteMethod = "narrowed"    // Scope narrowed to the evidence wording
	RewriteAttribution RewriteMethod = "attribution" // Evidence sentence attributed to the citation
	RewriteLLM         RewriteMethod = "llm"
	RewriteNone        RewriteMethod = "none"
)

// Rewrite is the proposer output for one FAIL claim: either a grounded
// replacement or an explicit no-rewrite marker, never neither
type Rewrite struct {
	ClaimID     string        `json:"claim_id"`
	ReviewID    string        `json:"review_id"`
	Verdict     Verdict       `json:"verdict"`
	Original    string        `json:"original"`
	Proposed    string        `json:"proposed,omitempty"`
	NoRewrite   bool          `json:"no_rewrite"`
	Marker      string        `json:"marker,omitempty"`
	EvidenceRef string        `json:"evidence_ref,omitempty"` // Passage.Ref() of the grounding passage
	Method      RewriteMethod `json:"method"`
}
