package extract

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/ppiankov/citeaudit/internal/score"
)

// Words that only introduce a citation ("see", "cf.") and carry no content
var citationCues = map[string]bool{"see": true, "cf": true, "eg": true, "ie": true, "ibid": true}

var claimNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ppiankov/citeaudit/claim"))

// ClaimID derives the stable id of a claim from its review, offset and text
func ClaimID(reviewID string, start int, text string) string {
	name := reviewID + "\x00" + strconv.Itoa(start) + "\x00" + text
	return uuid.NewSHA1(claimNamespace, []byte(name)).String()
}

// Linker finds sourced statements in review documents
type Linker struct{}

// NewLinker creates a new claim-citation linker
func NewLinker() *Linker {
	return &Linker{}
}

type pendingSentence struct {
	sent      Sentence
	parsed    ParsedSentence
	citeOnly  bool
	attachEnd int // End of the last citation-only sentence attached to this one
	extra     []Marker
}

// Link returns the claims of a review in document order.
//
// A citation marker belongs to the sentence containing it. A sentence that is
// only citation material attaches its citations to the nearest preceding
// statement in the same block and is dropped when there is none. Sentences
// without any citation are not claims. The reference list is not scanned.
func (l *Linker) Link(doc *model.Document) []model.Claim {
	refs := IndexReferences(doc)
	section := "unknown"

	var claims []model.Claim
	for _, block := range doc.Blocks {
		if block.Heading > 0 {
			if !refs.Covers(block.Index) {
				section = block.Text
			}
			continue
		}
		if refs.Covers(block.Index) {
			continue
		}

		var sentences []*pendingSentence
		var anchor *pendingSentence
		for _, sent := range SplitSentences(block.Text) {
			parsed := ParseCitations(sent.Text, doc.Footnotes)
			ps := &pendingSentence{
				sent:      sent,
				parsed:    parsed,
				citeOnly:  isCitationOnly(parsed.Statement),
				attachEnd: sent.End,
			}

			if ps.citeOnly {
				if anchor != nil && len(parsed.Markers) > 0 {
					anchor.extra = append(anchor.extra, parsed.Markers...)
					anchor.attachEnd = sent.End
				}
				continue
			}
			anchor = ps
			sentences = append(sentences, ps)
		}

		for _, ps := range sentences {
			markers := append(append([]Marker(nil), ps.parsed.Markers...), ps.extra...)
			if len(markers) == 0 {
				continue
			}
			claims = append(claims, l.buildClaim(doc, block, section, ps, markers, refs))
		}
	}

	return claims
}

// isCitationOnly reports whether a statement has no content words once its
// citation markers are removed
func isCitationOnly(statement string) bool {
	for _, term := range score.Terms(statement) {
		if !citationCues[term] {
			return false
		}
	}
	return true
}

func (l *Linker) buildClaim(doc *model.Document, block model.Block, section string, ps *pendingSentence, markers []Marker, refs *ReferenceList) model.Claim {
	seen := make(map[string]bool)
	var citations []model.Citation
	for _, m := range markers {
		if seen[m.Key] {
			continue
		}
		seen[m.Key] = true
		cit := m.Citation
		if refs != nil && refs.Len() > 0 {
			listed := refs.Contains(cit.Key)
			cit.InReferenceList = &listed
		}
		citations = append(citations, cit)
	}

	text := block.Text[ps.sent.Start:ps.attachEnd]
	start := block.Offset + ps.sent.Start

	claim := model.Claim{
		ID:         ClaimID(doc.ID, start, text),
		ReviewID:   doc.ID,
		Section:    section,
		Text:       text,
		Statement:  ps.parsed.Statement,
		Start:      start,
		End:        block.Offset + ps.attachEnd,
		Citations:  citations,
		HasNumbers: hasNumbers(ps.parsed.Statement),
		IsQuote:    isQuote(text),
		IsCausal:   isCausal(ps.parsed.Statement),
		Priority:   model.PriorityLow,
	}
	if claim.HasNumbers || claim.IsQuote || claim.IsCausal {
		claim.Priority = model.PriorityHigh
	}
	return claim
}
