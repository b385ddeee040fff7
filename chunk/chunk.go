// Package chunk splits long text into overlapping token windows sized for
// the embedding service's input limit.
package chunk

import (
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/mail-recall/tokenizer"
)

// Chunker produces overlapping token-window slices of text. Windows advance
// by window-overlap tokens; the final chunk may be shorter than window.
type Chunker struct {
	enc     tokenizer.Encoding
	window  int
	overlap int
}

// New validates the window geometry and returns a Chunker over enc.
func New(enc tokenizer.Encoding, window, overlap int) (*Chunker, error) {
	if enc == nil {
		return nil, errors.New("chunk.New: encoding is nil")
	}
	if window <= 0 {
		return nil, fmt.Errorf("chunk.New: window must be > 0, got %d", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("chunk.New: overlap must be in [0, window), got %d", overlap)
	}
	return &Chunker{enc: enc, window: window, overlap: overlap}, nil
}

// Split chunks text on token boundaries. Empty text yields no chunks.
//
// For n tokens the chunk count is ceil((n-overlap)/(window-overlap)), and
// re-encoding the chunks and dropping the leading overlap of every chunk but
// the first reconstructs the original token sequence.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	tokens := c.enc.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.window - c.overlap
	chunks := make([]string, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + c.window
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// Window returns the configured window size in tokens.
func (c *Chunker) Window() int { return c.window }

// Overlap returns the configured overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }
