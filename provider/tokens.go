package provider

import (
	"github.com/theimaginaryfoundation/mail-recall/tokenizer"
)

// Per-message framing overhead of the chat wire format for cl100k-family
// models: every message costs a few tokens beyond its content, and the model
// reply is primed with a fixed prefix.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

// TokenCounter measures prompt sizes the way the completion service bills
// them, including message framing overhead.
type TokenCounter struct {
	enc tokenizer.Encoding
}

// NewTokenCounter wraps enc for prompt sizing.
func NewTokenCounter(enc tokenizer.Encoding) *TokenCounter {
	return &TokenCounter{enc: enc}
}

// Count returns the token count of a single text.
func (t *TokenCounter) Count(text string) int {
	return tokenizer.Count(t.enc, text)
}

// CountMessages returns the exact prompt size of a message list, framing
// overhead included.
func (t *TokenCounter) CountMessages(msgs []Message) int {
	total := tokensPerReply
	for _, m := range msgs {
		total += tokensPerMessage
		total += tokenizer.Count(t.enc, m.Role)
		total += tokenizer.Count(t.enc, m.Content)
	}
	return total
}

// Truncate trims text to at most max tokens on a token boundary.
func (t *TokenCounter) Truncate(text string, max int) string {
	return tokenizer.Truncate(t.enc, text, max)
}
