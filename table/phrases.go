package table

import (
	"strings"

	"github.com/Aashish23092/invoice-line-verification/utils"
)

// phraseSet matches whole, case-insensitive phrases. It is only ever applied to
// header and summary detection, never to description text of body rows.
type phraseSet struct {
	phrases  map[string]bool
	maxWords int
}

func newPhraseSet(list []string) phraseSet {
	ps := phraseSet{phrases: make(map[string]bool, len(list))}
	for _, p := range list {
		words := normalizeWords(strings.Fields(p))
		if len(words) == 0 {
			continue
		}
		ps.phrases[strings.Join(words, " ")] = true
		if len(words) > ps.maxWords {
			ps.maxWords = len(words)
		}
	}
	return ps
}

func (ps phraseSet) exact(label string) bool {
	return label != "" && ps.phrases[label]
}

// countMatches counts non-overlapping phrase occurrences in words, preferring
// the longest phrase at each position.
func (ps phraseSet) countMatches(words []string) int {
	count := 0
	for i := 0; i < len(words); {
		matched := 0
		for n := min(ps.maxWords, len(words)-i); n > 0; n-- {
			if ps.phrases[strings.Join(words[i:i+n], " ")] {
				matched = n
				break
			}
		}
		if matched > 0 {
			count++
			i += matched
		} else {
			i++
		}
	}
	return count
}

// isHeader reports a text-only line made of at least two header phrases.
func (ps phraseSet) isHeader(words []string) bool {
	norm := normalizeWords(words)
	for _, w := range words {
		if utils.IsNumeric(w) {
			return false
		}
	}
	return ps.countMatches(norm) >= 2
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := utils.NormalizeWord(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}
