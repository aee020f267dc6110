package textseg

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Segment is one provider-sized slice of the input text. Segments of a
// request are totally ordered by Index starting at 0.
type Segment struct {
	Index     int
	Text      string
	CharCount int
}

// Trailing tokens that end with a period but do not end a sentence.
var abbreviations = map[string]struct{}{
	"dr.":   {},
	"mr.":   {},
	"mrs.":  {},
	"ms.":   {},
	"prof.": {},
	"inc.":  {},
	"ltd.":  {},
	"etc.":  {},
	"vs.":   {},
	"e.g.":  {},
	"i.e.":  {},
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Split breaks body into ordered segments of at most maxChars characters,
// preferring sentence boundaries, then word boundaries, then hard character
// splits. An empty or whitespace-only body yields no segments.
func Split(body string, maxChars int) ([]Segment, error) {
	if maxChars < 1 {
		return nil, fmt.Errorf("segment limit must be >= 1, got %d", maxChars)
	}
	normalized := Normalize(body)
	if normalized == "" {
		return nil, nil
	}

	var texts []string
	if utf8.RuneCountInString(normalized) <= maxChars {
		texts = []string{normalized}
	} else {
		texts = pack(splitSentences(normalized), maxChars)
	}

	segments := make([]Segment, len(texts))
	for i, t := range texts {
		segments[i] = Segment{Index: i, Text: t, CharCount: utf8.RuneCountInString(t)}
	}
	return segments, nil
}

// splitSentences cuts normalized text after sentence-ending punctuation
// followed by a space, keeping the punctuation with its sentence. Periods
// that terminate known abbreviations do not end a sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		candidate := strings.TrimSpace(string(runes[start : i+1]))
		if r == '.' {
			if _, ok := abbreviations[lastToken(candidate)]; ok {
				continue
			}
		}
		if candidate != "" {
			sentences = append(sentences, candidate)
		}
		i++
		start = i + 1
	}
	if start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

func lastToken(s string) string {
	if idx := strings.LastIndexByte(s, ' '); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.ToLower(s)
}

// pack greedily joins sentences into segments up to maxChars. Oversized
// sentences fall through to word-level splitting.
func pack(sentences []string, maxChars int) []string {
	var out []string
	current := ""
	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}
	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		switch {
		case n > maxChars:
			flush()
			out = append(out, splitByWords(sentence, maxChars)...)
		case current == "":
			current = sentence
		case utf8.RuneCountInString(current)+1+n <= maxChars:
			current += " " + sentence
		default:
			flush()
			current = sentence
		}
	}
	flush()
	return out
}

// splitByWords packs words up to maxChars. A single word longer than the
// limit is split at exactly maxChars characters.
func splitByWords(sentence string, maxChars int) []string {
	var out []string
	current := ""
	for _, word := range strings.Split(sentence, " ") {
		n := utf8.RuneCountInString(word)
		switch {
		case n > maxChars:
			if current != "" {
				out = append(out, current)
				current = ""
			}
			out = append(out, hardSplit(word, maxChars)...)
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+n <= maxChars:
			current += " " + word
		default:
			out = append(out, current)
			current = word
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

func hardSplit(word string, maxChars int) []string {
	runes := []rune(word)
	var out []string
	for len(runes) > maxChars {
		out = append(out, string(runes[:maxChars]))
		runes = runes[maxChars:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
