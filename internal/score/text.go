package score

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "a": true, "an": true, "of": true, "to": true, "in": true, "for": true,
	"on": true, "with": true, "as": true, "by": true, "from": true, "at": true, "that": true, "this": true,
	"these": true, "those": true, "is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "it": true, "its": true, "their": true, "there": true, "which": true,
	"or": true, "not": true, "but": true, "if": true, "than": true, "can": true, "may": true,
	"might": true, "should": true, "would": true, "could": true, "will": true, "shall": true, "do": true,
	"does": true, "did": true, "done": true, "such": true, "into": true, "over": true, "about": true,
	"across": true, "per": true, "vs": true, "via": true, "within": true, "between": true, "among": true,
	"both": true, "also": true, "more": true, "most": true, "much": true, "many": true, "some": true,
	"any": true, "each": true, "other": true, "another": true, "however": true, "therefore": true,
	"thus": true, "so": true, "because": true, "while": true, "where": true, "when": true,
	"roughly": true, "approximately": true, "around": true, "nearly": true, "almost": true,
	"estimated": true, "up": true, "least": true, "we": true, "our": true,
	"they": true, "has": true, "have": true, "had": true, "no": true, "never": true,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "neither": true, "nor": true,
	"cannot": true, "without": true, "isnt": true, "arent": true, "doesnt": true, "dont": true,
	"didnt": true, "wasnt": true, "werent": true, "wont": true,
}

// Hedge qualifiers that may precede a figure
var hedges = map[string]bool{
	"roughly": true, "approximately": true, "about": true, "around": true, "nearly": true,
	"almost": true, "some": true, "over": true, "under": true, "circa": true, "approx": true,
	"estimated": true, "~": true,
}

var numberRE = regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s*(%|percent\b|per\s+cent\b)?`)

// Number is a figure found in text with its unit ("%" or "")
type Number struct {
	Value string
	Unit  string
	Start int
	End   int
}

// Numbers returns the figures in text in order
func Numbers(text string) []Number {
	var out []Number
	for _, m := range numberRE.FindAllStringSubmatchIndex(text, -1) {
		n := Number{
			Value: strings.ReplaceAll(text[m[2]:m[3]], ",", ""),
			Start: m[0],
			End:   m[1],
		}
		if m[4] >= 0 {
			n.Unit = "%"
		}
		// Drop trailing whitespace consumed before a missing unit
		n.End = m[0] + len(strings.TrimRight(text[m[0]:m[1]], " \t"))
		out = append(out, n)
	}
	return out
}

// Matches reports whether two figures are the same quantity
func (n Number) Matches(o Number) bool {
	if n.Value != o.Value {
		return false
	}
	return n.Unit == o.Unit || n.Unit == "" || o.Unit == ""
}

// Hedge returns the qualifier word immediately before the figure, if any
func (n Number) Hedge(text string) string {
	words := strings.Fields(text[:n.Start])
	if len(words) == 0 {
		return ""
	}
	last := words[len(words)-1]
	if len(words) >= 2 {
		pair := words[len(words)-2] + " " + last
		switch strings.ToLower(pair) {
		case "more than", "less than", "up to", "at least", "an estimated":
			return pair
		}
	}
	if hedges[strings.ToLower(last)] {
		return last
	}
	return ""
}

// Tokens lowercases text and splits it into letter-or-digit runs
func Tokens(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "")
	text = strings.ReplaceAll(text, "'", "")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the stemmed content words of text: stopwords, figures and
// single characters removed
func Terms(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if len(tok) < 2 || stopwords[tok] || isNumeric(tok) {
			continue
		}
		out = append(out, Stem(tok))
	}
	return out
}

// Ungrounded returns the distinct content terms of text that never occur in
// evidence, in order of first appearance
func Ungrounded(text, evidence string) []string {
	have := make(map[string]bool)
	for _, t := range Terms(evidence) {
		have[t] = true
	}
	var out []string
	for _, t := range Terms(text) {
		if !have[t] {
			have[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Stem strips common English inflections and a final silent e
func Stem(w string) string {
	s := stripSuffix(w)
	if len(s) > 4 && strings.HasSuffix(s, "e") {
		return s[:len(s)-1]
	}
	return s
}

func stripSuffix(w string) string {
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	case len(w) > 4 && (strings.HasSuffix(w, "ses") || strings.HasSuffix(w, "xes") || strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:len(w)-1]
	}
	return w
}

// Negated reports whether text carries a negation word
func Negated(text string) bool {
	for _, tok := range Tokens(text) {
		if negations[tok] {
			return true
		}
	}
	return false
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// TF returns normalized term frequencies
func TF(terms []string) map[string]float64 {
	tf := make(map[string]float64, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	n := float64(len(terms))
	if n == 0 {
		n = 1
	}
	for k := range tf {
		tf[k] /= n
	}
	return tf
}

// IDF computes smoothed inverse document frequencies over term sets
func IDF(docs [][]string) map[string]float64 {
	df := make(map[string]int)
	for _, terms := range docs {
		seen := make(map[string]bool)
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for t, c := range df {
		idf[t] = math.Log((n+1)/(float64(c)+1)) + 1
	}
	return idf
}

// Weight applies idf weights to a tf vector; unseen terms get the maximum weight
func Weight(tf, idf map[string]float64, unseen float64) map[string]float64 {
	out := make(map[string]float64, len(tf))
	for t, v := range tf {
		w, ok := idf[t]
		if !ok {
			w = unseen
		}
		out[t] = v * w
	}
	return out
}

// Cosine returns the cosine similarity of two sparse vectors.
// Terms are summed in sorted order so equal inputs give bit-identical results.
func Cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for _, k := range sortedKeys(a) {
		v := a[k]
		na += v * v
		if w, ok := b[k]; ok {
			dot += v * w
		}
	}
	for _, k := range sortedKeys(b) {
		nb += b[k] * b[k]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sentences splits passage text at sentence punctuation followed by whitespace
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// BestSentence returns the passage sentence sharing the most content terms
// with the claim; ties go to the earlier sentence
func BestSentence(claim, passage string) string {
	want := make(map[string]bool)
	for _, t := range Terms(claim) {
		want[t] = true
	}

	best, bestHits := "", -1
	for _, s := range Sentences(passage) {
		hits := 0
		seen := make(map[string]bool)
		for _, t := range Terms(s) {
			if want[t] && !seen[t] {
				seen[t] = true
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = s, hits
		}
	}
	return best
}
