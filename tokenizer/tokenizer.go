// Package tokenizer wraps a BPE token encoding behind a small interface so
// that chunking, token budgeting, and prompt sizing all count tokens the same
// way the embedding and completion services do.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the encoding used by the embedding and chat models
// this repo targets.
const DefaultEncoding = "cl100k_base"

// Encoding converts text to token ids and back.
type Encoding interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenEncoding struct {
	enc *tiktoken.Tiktoken
}

// Open loads a named tiktoken encoding (e.g. "cl100k_base").
func Open(name string) (Encoding, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("Open: get encoding %q: %w", name, err)
	}
	return &tiktokenEncoding{enc: enc}, nil
}

func (t *tiktokenEncoding) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenEncoding) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func Count(enc Encoding, text string) int {
	if text == "" {
		return 0
	}
	return len(enc.Encode(text))
}

// Truncate trims text to at most max tokens, preserving token boundaries.
func Truncate(enc Encoding, text string, max int) string {
	if max <= 0 {
		return ""
	}
	tokens := enc.Encode(text)
	if len(tokens) <= max {
		return text
	}
	return enc.Decode(tokens[:max])
}
