// Package chunking splits long text into segments that fit a model's input
// budget without breaking sentences apart.
package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Segmenter struct {
	MaxUnits int
	Counter  UnitCounter
}

func NewSegmenter(maxUnits int, counter UnitCounter) *Segmenter {
	if counter == nil {
		counter = WordCounter{}
	}
	return &Segmenter{MaxUnits: maxUnits, Counter: counter}
}

// Segment splits text with the default word counter.
func Segment(text string, maxUnits int) []string {
	return NewSegmenter(maxUnits, WordCounter{}).Segment(text)
}

// Segment greedily packs whole sentences into chunks of at most MaxUnits.
// A sentence that alone exceeds the budget becomes its own chunk. The result
// is never empty: text with no sentences comes back unchanged as the only
// segment, including the empty string.
func (s *Segmenter) Segment(text string) []string {
	var chunks []string
	var current strings.Builder
	currentUnits := 0

	for _, sentence := range SplitSentences(text) {
		sentenceUnits := s.Counter.Count(sentence)
		if currentUnits+sentenceUnits > s.MaxUnits {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
			}
			current.Reset()
			current.WriteString(sentence)
			currentUnits = s.Counter.Count(current.String())
			continue
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentUnits = s.Counter.Count(current.String())
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// SplitSentences cuts after '.', '!' or '?' when the mark is followed by
// whitespace. Pieces are trimmed and empty pieces dropped. Abbreviations such
// as "Dr. Smith" are split too; the heuristic only promises determinism.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0

	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			break
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		if !unicode.IsSpace(nr) {
			continue
		}
		if piece := strings.TrimSpace(text[start:next]); piece != "" {
			sentences = append(sentences, piece)
		}
		start = next
	}

	if piece := strings.TrimSpace(text[start:]); piece != "" {
		sentences = append(sentences, piece)
	}
	return sentences
}
