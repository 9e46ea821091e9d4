package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentence is a span of a block's text
type Sentence struct {
	Text  string
	Start int // Byte offset within the block
	End   int
}

var abbreviations = map[string]bool{
	"al": true, "e.g": true, "i.e": true, "cf": true, "p": true, "pp": true,
	"vs": true, "fig": true, "no": true, "ed": true, "eds": true, "dr": true,
	"mr": true, "mrs": true, "ms": true, "approx": true, "ca": true, "st": true,
	"vol": true, "eq": true, "etc": true,
}

// SplitSentences splits text after '.', '!' or '?' when the next non-space
// character opens a new sentence (an uppercase letter, quote or bracket).
// Abbreviations and name initials never end a sentence.
func SplitSentences(text string) []Sentence {
	var out []Sentence
	start := 0

	emit := func(end int) {
		seg := text[start:end]
		trimmed := strings.TrimSpace(seg)
		if trimmed != "" {
			lead := strings.Index(seg, trimmed)
			out = append(out, Sentence{
				Text:  trimmed,
				Start: start + lead,
				End:   start + lead + len(trimmed),
			})
		}
		start = end
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}

		end := i + 1
		for end < len(text) && strings.ContainsRune(`"')]`, rune(text[end])) {
			end++
		}
		// Closing curly quotes are multibyte
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(text[end:])
			if r != '”' && r != '’' {
				break
			}
			end += size
		}

		next := end
		for next < len(text) && (text[next] == ' ' || text[next] == '\t' || text[next] == '\n') {
			next++
		}
		if next == end || next >= len(text) {
			continue
		}
		if !opensSentence(text[next:]) {
			continue
		}
		if c == '.' && isAbbreviation(text[:i]) {
			continue
		}

		emit(end)
		i = end - 1
	}
	emit(len(text))

	return out
}

func opensSentence(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	if unicode.IsUpper(r) {
		return true
	}
	return strings.ContainsRune(`("“[‘'`, r)
}

// isAbbreviation reports whether the word ending text is a known abbreviation
// or a name initial
func isAbbreviation(text string) bool {
	i := len(text)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		i -= size
	}
	raw := strings.Trim(text[i:], ".")
	if raw == "" {
		return false
	}
	if abbreviations[strings.ToLower(raw)] {
		return true
	}
	return utf8.RuneCountInString(raw) == 1 && isInitial(raw, text[:i])
}

// isInitial reports whether a single letter is a name initial: uppercase and
// following a surname ("Smith, J."), another initial ("J. R.") or a
// conjunction between authors ("and R.")
func isInitial(letter, before string) bool {
	r, _ := utf8.DecodeRuneInString(letter)
	if !unicode.IsUpper(r) {
		return false
	}
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return true
	}
	prev := fields[len(fields)-1]
	switch prev {
	case "and", "&":
		return true
	}
	first, _ := utf8.DecodeRuneInString(prev)
	if !unicode.IsUpper(first) {
		return false
	}
	return strings.HasSuffix(prev, ",") || strings.HasSuffix(prev, ".")
}
