package registry

import (
	"sort"

	"github.com/ppiankov/citeaudit/internal/model"
)

func claimLess(a, b *model.Claim) bool {
	if a.ReviewID != b.ReviewID {
		return a.ReviewID < b.ReviewID
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ID < b.ID
}

// SortEnriched orders records by review id, claim start, claim id
func SortEnriched(records []model.EnrichedRecord) {
	sort.SliceStable(records, func(i, j int) bool { return claimLess(&records[i].Claim, &records[j].Claim) })
}

// SortAdjudicated orders adjudications by review id, claim start, claim id
func SortAdjudicated(adjudicated []model.AdjudicatedClaim) {
	sort.SliceStable(adjudicated, func(i, j int) bool { return claimLess(&adjudicated[i].Claim, &adjudicated[j].Claim) })
}

var verdictOrder = map[model.Verdict]int{
	model.VerdictPass:            0,
	model.VerdictUnsupportedFail: 1,
	model.VerdictUnresolvedFail:  2,
}

var levelOrder = map[string]int{"overall": 0, "review": 1, "section": 2}

// Summarize counts verdicts overall, per review and per review section.
// Only non-zero counts are returned.
func Summarize(adjudicated []model.AdjudicatedClaim) []model.VerdictCount {
	type group struct {
		level, review, section string
		verdict                model.Verdict
	}
	counts := make(map[group]int)
	for _, ac := range adjudicated {
		a := ac.Adjudication
		counts[group{"overall", "", "", a.Verdict}]++
		counts[group{"review", a.ReviewID, "", a.Verdict}]++
		counts[group{"section", a.ReviewID, a.Section, a.Verdict}]++
	}

	out := make([]model.VerdictCount, 0, len(counts))
	for g, n := range counts {
		out = append(out, model.VerdictCount{Level: g.level, ReviewID: g.review, Section: g.section, Verdict: g.verdict, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Level != b.Level {
			return levelOrder[a.Level] < levelOrder[b.Level]
		}
		if a.ReviewID != b.ReviewID {
			return a.ReviewID < b.ReviewID
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if verdictOrder[a.Verdict] != verdictOrder[b.Verdict] {
			return verdictOrder[a.Verdict] < verdictOrder[b.Verdict]
		}
		return a.Verdict < b.Verdict
	})
	return out
}
