package generate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// MaxChars is the hard character budget for any generated text.
const MaxChars = 280

// TruncateAtWord cuts s to at most max characters. When a whitespace
// boundary exists within the trailing half of the truncated span the cut
// happens there, so words are never split mid-way; an ellipsis marks the cut.
func TruncateAtWord(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	// Reserve one slot for the ellipsis.
	cut := max - 1
	boundary := -1
	for i := cut; i >= cut/2; i-- {
		if unicode.IsSpace(runes[i]) {
			boundary = i
			break
		}
	}
	if boundary > 0 {
		cut = boundary
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n") + "…"
}

// ApplyVocabulary rewrites whole words per the substitution table, keyed by
// the lower-case source word. Longer keys substitute first so multi-word
// phrases are not clobbered by their parts.
func ApplyVocabulary(s string, table map[string]string) string {
	if len(table) == 0 {
		return s
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`)
		s = re.ReplaceAllString(s, table[k])
	}
	return s
}
