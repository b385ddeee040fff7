package provider

import (
	"strings"
	"testing"
)

// wordEncoding counts each whitespace-separated word as one token.
type wordEncoding struct{}

func (wordEncoding) Encode(text string) []int {
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	for i := range words {
		tokens[i] = i
	}
	return tokens
}

func (wordEncoding) Decode(tokens []int) string {
	return strings.Repeat("w ", len(tokens))
}

func TestTokenCounter_Count(t *testing.T) {
	t.Parallel()

	c := NewTokenCounter(wordEncoding{})
	if got := c.Count("one two three"); got != 3 {
		t.Fatalf("Count=%d, want 3", got)
	}
	if got := c.Count(""); got != 0 {
		t.Fatalf("Count(\"\")=%d, want 0", got)
	}
}

func TestTokenCounter_CountMessages(t *testing.T) {
	t.Parallel()

	c := NewTokenCounter(wordEncoding{})
	msgs := []Message{
		{Role: "system", Content: "a b"},
		{Role: "user", Content: "c d e"},
	}

	// 2 messages of framing, roles at 1 token each, 5 content tokens,
	// plus the reply priming.
	want := 2*tokensPerMessage + 2 + 5 + tokensPerReply
	if got := c.CountMessages(msgs); got != want {
		t.Fatalf("CountMessages=%d, want %d", got, want)
	}

	if got := c.CountMessages(nil); got != tokensPerReply {
		t.Fatalf("CountMessages(nil)=%d, want %d", got, tokensPerReply)
	}
}
