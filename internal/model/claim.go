package model

// Claim is a sourced statement from a review document
type Claim struct {
	ID        string     `json:"id"`        // UUIDv5 over review id, offset and text
	ReviewID  string     `json:"review_id"` // Document.ID of the review
	Section   string     `json:"section"`   // Nearest preceding heading, "unknown" if none
	Text      string     `json:"text"`      // Sentence as written, citation markers included
	Statement string     `json:"statement"` // Text with citation markers removed
	Start     int        `json:"start"`     // Offset of Text within the review's Document.Text()
	End       int        `json:"end"`
	Citations []Citation `json:"citations"` // Order-preserving, unique by Key

	HasNumbers bool     `json:"has_numbers"`
	IsQuote    bool     `json:"is_quote"`
	IsCausal   bool     `json:"is_causal"` // Causal or normative wording
	Priority   Priority `json:"priority"`
}

// Keys returns the claim's canonical citation keys in order
func (c *Claim) Keys() []string {
	keys := make([]string, len(c.Citations))
	for i, cit := range c.Citations {
		keys[i] = cit.Key
	}
	return keys
}

// Citation is one citation marker attached to a claim
type Citation struct {
	Key             string       `json:"key"` // Canonical author-year[-locator] key
	Raw             string       `json:"raw"` // Marker text as it appears in the review
	Type            CitationType `json:"type"`
	Secondary       bool         `json:"secondary"`
	PrimaryAuthor   string       `json:"primary_author,omitempty"` // Work mentioned via "as cited in"
	PrimaryYear     string       `json:"primary_year,omitempty"`
	StatedPage      string       `json:"stated_page,omitempty"`
	InReferenceList *bool        `json:"in_reference_list,omitempty"` // nil when the review has no reference list
}

// CitationType classifies the marker form
type CitationType string

const (
	CitationParenthetical          CitationType = "parenthetical"
	CitationNarrative              CitationType = "narrative"
	CitationSecondaryParenthetical CitationType = "secondary_parenthetical"
	CitationSecondaryNarrative     CitationType = "secondary_narrative"
	CitationFootnote               CitationType = "footnote"
)

// Priority ranks claims for manual review
type Priority string

const (
	PriorityHigh Priority = "High" // Quote, number, or causal/normative wording
	PriorityLow  Priority = "Low"
)
