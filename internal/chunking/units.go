package chunking

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	UNIT_WORDS    = "words"
	UNIT_TIKTOKEN = "tiktoken"

	DEFAULT_TIKTOKEN_ENCODING = "cl100k_base"
)

// UnitCounter measures text in the unit the segment budget is expressed in.
type UnitCounter interface {
	Count(text string) int
}

// WordCounter counts whitespace separated tokens. It only approximates a
// model tokenizer: one word can expand into several subword tokens.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenCounter counts BPE tokens. It is closer to what a transformer sees
// than WordCounter, but still not the model's own vocabulary.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DEFAULT_TIKTOKEN_ENCODING
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// NewUnitCounter resolves a counter by name. An empty name means words.
func NewUnitCounter(name, encoding string) (UnitCounter, error) {
	switch strings.ToLower(name) {
	case "", UNIT_WORDS:
		return WordCounter{}, nil
	case UNIT_TIKTOKEN:
		return NewTiktokenCounter(encoding)
	default:
		return nil, fmt.Errorf("unknown unit counter %q", name)
	}
}
