package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// DefaultFuzzyRatio is the similarity a word pair needs in
// [ContainsPhraseFuzzy] when the caller has no better value.
const DefaultFuzzyRatio = 0.75

// containsBounded reports whether phrase occurs in message, ignoring case,
// as one unit preceded by the start of message or whitespace and followed by
// whitespace or the end. Whitespace is what [unicode.IsSpace] accepts, the
// same separators [words] splits on.
func containsBounded(message, phrase string) bool {
	if phrase == "" {
		return true
	}
	m, p := strings.ToLower(message), strings.ToLower(phrase)
	for from := 0; from+len(p) <= len(m); {
		i := strings.Index(m[from:], p)
		if i < 0 {
			return false
		}
		i += from
		if spaceBefore(m, i) && spaceAt(m, i+len(p)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(m[i:])
		from = i + size
	}
	return false
}

func spaceBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r)
}

func spaceAt(s string, i int) bool {
	if i == len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r)
}

// ContainsPhrase reports whether phrase occurs in message as a whole-word,
// case-insensitive substring. The empty phrase is contained in every message.
func ContainsPhrase(message, phrase string) bool {
	if phrase == "" {
		return true
	}
	if message == "" {
		return false
	}
	return containsBounded(message, phrase)
}

// ContainsPhraseFuzzy reports whether the words of phrase appear in message
// as a contiguous run, in order, with every word pair reaching minRatio
// under [LevenshteinRatio].
//
// The walk does not backtrack. Leading message words that do not match the
// first phrase word are skipped, but once a run has started a single miss
// fails the whole match, even if a later run would have succeeded. Trailing
// message words after a complete run are ignored.
//
// Words are split on whitespace and stripped of surrounding punctuation, so
// "sign?" is compared as "sign".
func ContainsPhraseFuzzy(message, phrase string, minRatio float64) bool {
	want := words(phrase)
	next := 0
	for _, w := range words(message) {
		if next == len(want) {
			return true
		}
		if LevenshteinRatio(w, want[next]) >= minRatio {
			next++
			continue
		}
		if next > 0 {
			return false
		}
	}
	return next == len(want)
}

// LevenshteinRatio returns 1 - d/max(len(a), len(b)) where d is the edit
// distance between the lower-cased inputs and lengths are counted in runes.
// Two empty strings are identical (1.0).
func LevenshteinRatio(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// words splits s on whitespace runs and trims punctuation from each word.
// Words that are nothing but punctuation are dropped.
func words(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
