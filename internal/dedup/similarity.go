package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sheet placeholders staff and the intake pipeline write for absent values.
// They carry no matching signal and are treated as empty.
const (
	placeholderUnspecified   = "no especificado"
	placeholderNotApplicable = "no aplicable"
)

// normalize prepares a field value for comparison: invalid UTF-8 dropped,
// lowercased, accents folded (Garcia == García), whitespace collapsed.
// Placeholder values normalize to the empty string.
func normalize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ToLower(s)
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == placeholderUnspecified || s == placeholderNotApplicable {
		return ""
	}
	return s
}

// tokenize splits a normalized value into alphanumeric tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// levenshteinRatio is 1 - dist/maxLen over runes, in [0,1].
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// tokenJaccard is |A∩B| / |A∪B| over token sets.
func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(a))
	for _, tok := range a {
		seen[tok] = true
	}
	union := len(seen)
	shared := 0
	counted := make(map[string]bool, len(b))
	for _, tok := range b {
		if counted[tok] {
			continue
		}
		counted[tok] = true
		if seen[tok] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// fieldSimilarity scores two raw field values in [0,1]. An empty value on
// either side scores 0 so sparse records cannot inflate the total. For
// non-empty pairs the score is the better of edit-distance ratio and token
// overlap, which keeps both reorderings ("noise brake") and near-misses
// ("SN123" vs "SN-123") scoring high.
func fieldSimilarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	lev := levenshteinRatio(na, nb)
	jac := tokenJaccard(tokenize(na), tokenize(nb))
	if jac > lev {
		return jac
	}
	return lev
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
