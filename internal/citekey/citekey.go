// Package citekey canonicalises in-text citation markers into author-year keys.
package citekey

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	locatorRE   = regexp.MustCompile(`\bpp?\.?\s*(\d+(?:\s*[-–]\s*\d+)?)\b`)
	yearRE      = regexp.MustCompile(`\b((?:1[5-9]|20)\d{2}[a-z]?)\b`)
	etAlRE      = regexp.MustCompile(`\bet\.?\s*al\b\.?`)
	authorSepRE = regexp.MustCompile(`\band\b|&|,|;`)
	wordRE      = regexp.MustCompile(`[a-z]+`)
	spaceRE     = regexp.MustCompile(`\s+`)
)

// Name particles dropped when building surname variants
var particles = map[string]bool{
	"de": true, "van": true, "von": true, "da": true, "del": true, "di": true,
	"der": true, "den": true, "la": true, "le": true,
}

// Key is a parsed citation key
type Key struct {
	Author  string // First author, letter tokens joined with "_"
	Year    string // Four digits with optional letter suffix
	Locator string // Page or page range, digits only ("12", "12-14")
}

// String renders the canonical author-year[-pLOCATOR] form
func (k Key) String() string {
	var parts []string
	if k.Author != "" {
		parts = append(parts, k.Author)
	}
	if k.Year != "" {
		parts = append(parts, k.Year)
	}
	if k.Locator != "" {
		parts = append(parts, "p"+k.Locator)
	}
	return strings.Join(parts, "-")
}

// Work returns the key without its locator; this is what identifies a source
func (k Key) Work() string {
	k.Locator = ""
	return k.String()
}

// IsZero reports whether nothing usable was parsed
func (k Key) IsZero() bool {
	return k.Author == "" && k.Year == ""
}

// YearBase returns the four-digit year without its disambiguating letter
func (k Key) YearBase() string {
	if len(k.Year) > 4 {
		return k.Year[:4]
	}
	return k.Year
}

// Normalize returns the canonical form of a raw citation marker.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) string {
	return Parse(raw).String()
}

// Parse extracts author, year and locator from a raw marker, a canonical key,
// or a source file stem
func Parse(raw string) Key {
	s := Fold(raw)

	var k Key
	if m := locatorRE.FindStringSubmatchIndex(s); m != nil {
		loc := s[m[2]:m[3]]
		loc = strings.ReplaceAll(loc, "–", "-")
		loc = spaceRE.ReplaceAllString(loc, "")
		k.Locator = loc
		s = s[:m[0]] + " " + s[m[1]:]
	}

	s = strings.NewReplacer("_", " ", "-", " ", "–", " ", "—", " ").Replace(s)
	s = etAlRE.ReplaceAllString(s, " ")

	head := s
	if m := yearRE.FindStringSubmatchIndex(s); m != nil {
		k.Year = s[m[2]:m[3]]
		head = s[:m[0]]
	}

	first := authorSepRE.Split(head, 2)[0]
	k.Author = strings.Join(wordRE.FindAllString(first, -1), "_")
	return k
}

// Fold lowercases and strips diacritics
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("’", "", "'", "", "‘", "").Replace(folded)
	return strings.ToLower(folded)
}

// AuthorVariants returns the spellings under which an author may appear in a
// file stem: the joined form, the surname, concatenations, and forms without
// leading name particles
func AuthorVariants(author string) []string {
	if author == "" {
		return nil
	}
	parts := strings.Split(author, "_")
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	add(author)
	add(parts[len(parts)-1])
	add(strings.Join(parts, ""))

	i := 0
	for i < len(parts)-1 && particles[parts[i]] {
		i++
	}
	if i > 0 {
		add(strings.Join(parts[i:], "_"))
		add(strings.Join(parts[i:], ""))
	}
	return out
}
