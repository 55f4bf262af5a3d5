// Package moderation censors configured words in chat messages before they
// are broadcast or persisted.
package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"chat-relay/errors"
)

// Moderator matches censored words with an Aho-Corasick automaton built once
// at startup. Matching runs over a normalized view of the text (lowercased,
// leet speak folded, punctuation skipped) so trivial obfuscation still hits.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// textMapping is the normalized rune stream plus, for every normalized rune,
// the index it came from in the original text.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

func NewModerator(censoredWords []string, replacement rune) (*Moderator, error) {
	var patterns [][]rune
	for _, word := range censoredWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if p := normalizeRunes([]rune(word)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement}, nil
}

// Censor replaces every occurrence of a censored word with the replacement
// rune. Matches are found on the normalized view and mapped back, so the
// overall length of the original text is preserved.
func (m *Moderator) Censor(original string) string {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original
	}

	runes := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}

		// Cover the original span from the first to the last matched rune,
		// separators the normalization skipped included.
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}

func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds common leet speak substitutions back onto the standard
// alphabet.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise reports separators ignored during matching.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
