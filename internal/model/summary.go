package model

// VerdictCount is one row of the verdict dashboard
type VerdictCount struct {
	Level    string  `json:"level"` // overall, review, section
	ReviewID string  `json:"review_id,omitempty"`
	Section  string  `json:"section,omitempty"`
	Verdict  Verdict `json:"verdict"`
	Count    int     `json:"count"`
}
