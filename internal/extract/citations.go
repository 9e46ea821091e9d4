package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/citeaudit/internal/citekey"
	"github.com/ppiankov/citeaudit/internal/model"
)

var (
	parenBlockRE  = regexp.MustCompile(`\(([^()]+)\)`)
	citeYearRE    = regexp.MustCompile(`\b((?:1[5-9]|20)\d{2}[a-z]?)\b`)
	statedPageRE  = regexp.MustCompile(`\bpp?\.\s*(\d+(?:\s*[-–]\s*\d+)?)`)
	asCitedInRE   = regexp.MustCompile(`(?i)\bas\s+cited\s+in\b`)
	citePrefixRE  = regexp.MustCompile(`(?i)^(?:see\s+also|see|e\.g\.|cf\.|i\.e\.)[,\s]*`)
	narrativeRE   = regexp.MustCompile(`\b(\p{Lu}[\p{L}'’\-]+(?:\s+(?:&|and)\s+\p{Lu}[\p{L}'’\-]+)?(?:\s+et al\.?)?)\s*\(\s*(\d{4}[a-z]?)(?:\s*,\s*(pp?\.\s*\d+(?:\s*[-–]\s*\d+)?))?\s*\)`)
	footnoteRefRE = regexp.MustCompile(`\[\^([^\]\s]+)\]`)
	wordBeforeRE  = regexp.MustCompile(`(\p{Lu}[\p{L}'’\-]+)(?:\s+et al\.?)?\s*$`)
	quoteRE       = regexp.MustCompile(`["“”]`)
	digitRE       = regexp.MustCompile(`\d`)
	causalRE      = regexp.MustCompile(`(?i)\b(lead(?:s|ing)?\s+to|cause(?:s|d)?|result(?:s|ed)?\s+in|should|must|best\s+practice|therefore|hence)\b`)
	spacesRE      = regexp.MustCompile(`\s+`)
	spaceBeforeRE = regexp.MustCompile(`\s+([.,;:!?])`)
)

// Capitalized words that precede a year without being an author
var functionWords = map[string]bool{
	"In": true, "By": true, "Since": true, "From": true, "Until": true, "After": true,
	"Before": true, "During": true, "As": true, "Circa": true, "See": true,
	"Approximately": true, "Between": true, "Through": true,
}

// Marker is a citation found in a sentence with its byte span
type Marker struct {
	model.Citation
	Start int
	End   int
}

// ParsedSentence is a sentence's citations and its text with markers removed
type ParsedSentence struct {
	Markers   []Marker
	Statement string
}

// Citations returns the markers' citations in order
func (p ParsedSentence) Citations() []model.Citation {
	out := make([]model.Citation, len(p.Markers))
	for i, m := range p.Markers {
		out[i] = m.Citation
	}
	return out
}

// ParseCitations finds parenthetical, narrative, secondary and footnote
// citations in text. Markers are ordered by position and unique by key.
func ParseCitations(text string, footnotes map[string]string) ParsedSentence {
	var markers []Marker
	var remove [][2]int

	for _, loc := range parenBlockRE.FindAllStringSubmatchIndex(text, -1) {
		inner := text[loc[2]:loc[3]]
		found := false
		for _, piece := range strings.Split(inner, ";") {
			cit, ok := parseParenPiece(piece, text[:loc[0]])
			if !ok {
				continue
			}
			found = true
			markers = append(markers, Marker{Citation: cit, Start: loc[0], End: loc[1]})
		}
		if found {
			remove = append(remove, [2]int{loc[0], loc[1]})
		}
	}

	for _, loc := range narrativeRE.FindAllStringSubmatchIndex(text, -1) {
		author := text[loc[2]:loc[3]]
		if functionWords[strings.Fields(author)[0]] {
			continue
		}
		year := text[loc[4]:loc[5]]
		raw := author + " " + year
		cit := model.Citation{Raw: text[loc[0]:loc[1]], Type: model.CitationNarrative}
		if loc[6] >= 0 {
			page := statedPageRE.FindStringSubmatch(text[loc[6]:loc[7]])
			if page != nil {
				cit.StatedPage = compactRange(page[1])
				raw += " p. " + cit.StatedPage
			}
		}
		cit.Key = citekey.Normalize(raw)
		if cit.Key == "" {
			continue
		}
		markers = append(markers, Marker{Citation: cit, Start: loc[0], End: loc[1]})
		paren := strings.IndexByte(text[loc[0]:loc[1]], '(') + loc[0]
		remove = append(remove, [2]int{paren, loc[1]})
	}

	for _, loc := range footnoteRefRE.FindAllStringSubmatchIndex(text, -1) {
		remove = append(remove, [2]int{loc[0], loc[1]})
		body, ok := footnotes[text[loc[2]:loc[3]]]
		if !ok {
			continue
		}
		for _, cit := range parseFootnote(body) {
			cit.Raw = text[loc[0]:loc[1]]
			cit.Type = model.CitationFootnote
			markers = append(markers, Marker{Citation: cit, Start: loc[0], End: loc[1]})
		}
	}

	sort.SliceStable(markers, func(i, j int) bool { return markers[i].Start < markers[j].Start })
	seen := make(map[string]bool)
	unique := markers[:0]
	for _, m := range markers {
		if seen[m.Key] {
			continue
		}
		seen[m.Key] = true
		unique = append(unique, m)
	}

	return ParsedSentence{Markers: unique, Statement: stripSpans(text, remove)}
}

// parseParenPiece parses one ';'-separated piece of a parenthetical block.
// before is the text preceding the block, used to recover the primary author
// of a narrative secondary citation such as "Jones (2001, as cited in Smith 2020)".
func parseParenPiece(piece, before string) (model.Citation, bool) {
	piece = strings.TrimSpace(piece)
	if loc := asCitedInRE.FindStringIndex(piece); loc != nil {
		host, ok := parseWork(piece[loc[1]:])
		if !ok {
			return model.Citation{}, false
		}
		host.Raw = strings.TrimSpace(piece)
		host.Secondary = true
		host.Type = model.CitationSecondaryParenthetical

		primary := strings.Trim(strings.TrimSpace(piece[:loc[0]]), ",;")
		if y := citeYearRE.FindStringIndex(primary); y != nil {
			host.PrimaryYear = primary[y[0]:y[1]]
			primary = strings.Trim(strings.TrimSpace(primary[:y[0]]), ",")
		}
		if primary == "" {
			if m := wordBeforeRE.FindStringSubmatch(strings.TrimSpace(before)); m != nil {
				primary = m[1]
				host.Type = model.CitationSecondaryNarrative
			}
		}
		host.PrimaryAuthor = primary
		return host, true
	}

	cit, ok := parseWork(piece)
	if !ok {
		return model.Citation{}, false
	}
	cit.Raw = piece
	cit.Type = model.CitationParenthetical
	return cit, true
}

// parseWork parses "Author[, Author] Year[, p. N]" into a keyed citation
func parseWork(s string) (model.Citation, bool) {
	s = citePrefixRE.ReplaceAllString(strings.TrimSpace(s), "")
	y := citeYearRE.FindStringIndex(s)
	if y == nil {
		return model.Citation{}, false
	}
	head := strings.Trim(strings.TrimSpace(s[:y[0]]), ",;:( ")
	if !startsUpper(head) || functionWords[strings.Fields(head)[0]] {
		return model.Citation{}, false
	}

	var cit model.Citation
	raw := head + " " + s[y[0]:y[1]]
	if m := statedPageRE.FindStringSubmatch(s[y[1]:]); m != nil {
		cit.StatedPage = compactRange(m[1])
		raw += " p. " + cit.StatedPage
	}
	cit.Key = citekey.Normalize(raw)
	if cit.Key == "" {
		return model.Citation{}, false
	}
	return cit, true
}

// parseFootnote extracts citations from footnote text. A footnote without a
// recognisable citation is keyed by its whole text when that yields a key.
func parseFootnote(body string) []model.Citation {
	var out []model.Citation
	for _, loc := range parenBlockRE.FindAllStringSubmatchIndex(body, -1) {
		for _, piece := range strings.Split(body[loc[2]:loc[3]], ";") {
			if cit, ok := parseParenPiece(piece, body[:loc[0]]); ok {
				out = append(out, cit)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, piece := range strings.Split(body, ";") {
		if cit, ok := parseWork(piece); ok {
			out = append(out, cit)
		}
	}
	if len(out) > 0 {
		return out
	}
	if key := citekey.Normalize(body); key != "" {
		out = append(out, model.Citation{Key: key})
	}
	return out
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func compactRange(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "–", "-")), "")
}

// stripSpans removes the byte spans from text and tidies the spacing left behind
func stripSpans(text string, spans [][2]int) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp[0] < pos {
			if sp[1] > pos {
				pos = sp[1]
			}
			continue
		}
		b.WriteString(text[pos:sp[0]])
		pos = sp[1]
	}
	b.WriteString(text[pos:])

	out := spacesRE.ReplaceAllString(b.String(), " ")
	out = spaceBeforeRE.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out)
}

// Claim flags

func isQuote(text string) bool    { return quoteRE.MatchString(text) }
func hasNumbers(text string) bool { return digitRE.MatchString(text) }
func isCausal(text string) bool   { return causalRE.MatchString(text) }
