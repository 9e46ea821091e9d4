package registry

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/citeaudit/internal/model"
)

var (
	extractionErrorsHeader = []string{"path", "kind", "error"}
	registryHeader         = []string{
		"claim_id", "review_id", "section", "start", "end", "claim_text", "citation_keys", "citation_text",
		"resolved_source_id", "resolved_source_path", "match_method", "resolution_score",
		"passage_page", "passage_text", "passage_score", "in_reference_list", "priority",
	}
	adjudicationsHeader = []string{
		"claim_id", "review_id", "section", "verdict", "support_score", "threshold", "scorer",
		"evidence_source_id", "evidence_page", "evidence_text", "rationale", "risk_flags",
	}
	rewritesHeader = []string{
		"claim_id", "review_id", "verdict", "original_text", "proposed_rewrite", "no_rewrite", "marker", "evidence_ref", "method",
	}
	summaryHeader = []string{"level", "review_id", "section", "verdict", "count"}
)

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// WriteExtractionErrors writes one row per failed document, ordered by path
func WriteExtractionErrors(w io.Writer, failures []model.ExtractionFailure) error {
	sorted := make([]model.ExtractionFailure, len(failures))
	copy(sorted, failures)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	rows := make([][]string, len(sorted))
	for i, f := range sorted {
		rows[i] = []string{f.Path, string(f.Kind), f.Error}
	}
	return writeCSV(w, extractionErrorsHeader, rows)
}

// WriteRegistry writes one row per claim with its primary evidence
func WriteRegistry(w io.Writer, records []model.EnrichedRecord) error {
	rows := make([][]string, len(records))
	for i := range records {
		rec := &records[i]
		c := rec.Claim

		raws := make([]string, len(c.Citations))
		for j, cit := range c.Citations {
			raws[j] = cit.Raw
		}

		row := []string{
			c.ID, c.ReviewID, c.Section, strconv.Itoa(c.Start), strconv.Itoa(c.End), c.Text,
			strings.Join(c.Keys(), "; "), strings.Join(raws, "; "),
		}

		if ev := rec.Primary(); ev != nil {
			row = append(row, ev.SourceID, ev.SourcePath, string(ev.Method), formatScore(ev.MatchScore))
			if len(ev.Passages) > 0 {
				p := ev.Passages[0]
				row = append(row, strconv.Itoa(p.Page), p.Text, formatScore(p.Score))
			} else {
				row = append(row, "", "", "")
			}
		} else {
			row = append(row, "", "", string(model.MatchNone), formatScore(0), "", "", "")
		}

		row = append(row, inReferenceList(c.Citations), string(c.Priority))
		rows[i] = row
	}
	return writeCSV(w, registryHeader, rows)
}

// inReferenceList is empty when no reference list was found, false when any
// citation is missing from it
func inReferenceList(cits []model.Citation) string {
	known := false
	for _, cit := range cits {
		if cit.InReferenceList == nil {
			continue
		}
		known = true
		if !*cit.InReferenceList {
			return "false"
		}
	}
	if !known {
		return ""
	}
	return "true"
}

// WriteAdjudications writes one row per claim verdict
func WriteAdjudications(w io.Writer, adjudicated []model.AdjudicatedClaim) error {
	rows := make([][]string, len(adjudicated))
	for i := range adjudicated {
		a := adjudicated[i].Adjudication
		page, text := "", ""
		if a.Evidence != nil {
			page = strconv.Itoa(a.Evidence.Page)
			text = a.Evidence.Text
		}
		rows[i] = []string{
			a.ClaimID, a.ReviewID, a.Section, string(a.Verdict), formatScore(a.SupportScore), formatScore(a.Threshold),
			a.Scorer, a.SourceID, page, text, a.Rationale, strings.Join(a.RiskFlags, ";"),
		}
	}
	return writeCSV(w, adjudicationsHeader, rows)
}

// WriteRewrites writes one row per FAIL claim
func WriteRewrites(w io.Writer, rewrites []model.Rewrite) error {
	rows := make([][]string, len(rewrites))
	for i, r := range rewrites {
		rows[i] = []string{
			r.ClaimID, r.ReviewID, string(r.Verdict), r.Original, r.Proposed,
			strconv.FormatBool(r.NoRewrite), r.Marker, r.EvidenceRef, string(r.Method),
		}
	}
	return writeCSV(w, rewritesHeader, rows)
}

// WriteSummary writes the verdict dashboard
func WriteSummary(w io.Writer, counts []model.VerdictCount) error {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Level, c.ReviewID, c.Section, string(c.Verdict), strconv.Itoa(c.Count)}
	}
	return writeCSV(w, summaryHeader, rows)
}
