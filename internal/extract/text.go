package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/citeaudit/internal/model"
)

var (
	pageMarkerRE  = regexp.MustCompile(`^<<<PAGE=(\d+)>>>$`)
	mdHeadingRE   = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	footnoteDefRE = regexp.MustCompile(`^\[\^([^\]\s]+)\]:\s*(.+)$`)
	listItemRE    = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
)

// parsePagedText reads pre-extracted source text with <<<PAGE=n>>> markers.
// Text before the first marker, or a file without markers, is page 1.
func parsePagedText(text string) []model.Block {
	var (
		blocks []model.Block
		buf    []string
		page   = 1
	)
	flush := func() {
		if body := normalizeWhitespace(strings.Join(buf, "\n")); body != "" {
			blocks = append(blocks, model.Block{Text: body, Page: page})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := pageMarkerRE.FindStringSubmatch(trimmed); m != nil {
			flush()
			n, err := strconv.Atoi(m[1])
			if err == nil {
				page = n
			}
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return blocks
}

// parseReviewText reads markdown or plain-text reviews. Paragraphs are separated
// by blank lines. Headings are markdown headings, reference-list titles, short
// ALL-CAPS lines and short lines ending in a colon. Under a reference-list
// heading every line is its own entry. Footnote definitions are collected apart.
func parseReviewText(text string) ([]model.Block, map[string]string) {
	var (
		blocks       []model.Block
		para         []string
		inReferences bool
	)
	footnotes := make(map[string]string)

	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, model.Block{Text: strings.Join(para, " ")})
		}
		para = para[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || pageMarkerRE.MatchString(t) {
			flush()
			continue
		}
		if m := footnoteDefRE.FindStringSubmatch(t); m != nil {
			flush()
			footnotes[m[1]] = strings.TrimSpace(m[2])
			continue
		}
		if m := mdHeadingRE.FindStringSubmatch(t); m != nil {
			flush()
			blocks = append(blocks, model.Block{Text: m[2], Heading: len(m[1])})
			inReferences = IsReferencesHeading(m[2])
			continue
		}
		if isPlainHeading(t) {
			flush()
			heading := strings.TrimSuffix(t, ":")
			blocks = append(blocks, model.Block{Text: heading, Heading: 2})
			inReferences = IsReferencesHeading(heading)
			continue
		}
		if inReferences || listItemRE.MatchString(t) {
			flush()
			blocks = append(blocks, model.Block{Text: t})
			continue
		}
		para = append(para, t)
	}
	flush()

	return blocks, footnotes
}

func isPlainHeading(t string) bool {
	if IsReferencesHeading(t) {
		return true
	}
	words := len(strings.Fields(t))
	if words == 0 || words > 8 {
		return false
	}
	if strings.HasSuffix(t, ":") {
		return true
	}
	return strings.ToUpper(t) == t && strings.ToLower(t) != t
}
