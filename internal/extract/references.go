package extract

import (
	"regexp"

	"github.com/ppiankov/citeaudit/internal/citekey"
	"github.com/ppiankov/citeaudit/internal/model"
)

var referencesHeadingRE = regexp.MustCompile(`(?i)^\s*(references|reference list|bibliography|works cited|literature cited)\s*:?\s*$`)

// IsReferencesHeading reports whether a heading opens the reference list
func IsReferencesHeading(text string) bool {
	return referencesHeadingRE.MatchString(text)
}

// ReferenceList holds the canonical works listed in a review's reference section
type ReferenceList struct {
	works map[string]bool
	first int // First block index of the region
	last  int // Last block index of the region, inclusive
}

// IndexReferences finds the reference list of a review and indexes its entries.
// It returns nil when the review has no reference-list heading.
// The region runs from the heading to the next heading of the same or higher level.
func IndexReferences(doc *model.Document) *ReferenceList {
	for i, b := range doc.Blocks {
		if b.Heading == 0 || !IsReferencesHeading(b.Text) {
			continue
		}

		refs := &ReferenceList{works: make(map[string]bool), first: i, last: len(doc.Blocks) - 1}
		for j := i + 1; j < len(doc.Blocks); j++ {
			entry := doc.Blocks[j]
			if entry.Heading > 0 && entry.Heading <= b.Heading {
				refs.last = j - 1
				break
			}
			if entry.Heading > 0 {
				continue
			}
			if key := citekey.Parse(entry.Text); key.Year != "" && key.Author != "" {
				refs.works[key.Work()] = true
			}
		}
		return refs
	}
	return nil
}

// Contains reports whether the work of a canonical key is listed
func (r *ReferenceList) Contains(key string) bool {
	if r == nil {
		return false
	}
	return r.works[citekey.Parse(key).Work()]
}

// Covers reports whether a block index lies inside the reference region
func (r *ReferenceList) Covers(blockIndex int) bool {
	if r == nil {
		return false
	}
	return blockIndex >= r.first && blockIndex <= r.last
}

// Len returns the number of indexed works
func (r *ReferenceList) Len() int {
	if r == nil {
		return 0
	}
	return len(r.works)
}
