// Package chunker splits document text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
)

const (
	// DefaultSize is the default maximum chunk length in characters.
	DefaultSize = 1000

	// DefaultOverlap is the default number of characters repeated at the start of the next chunk.
	DefaultOverlap = 200
)

// ErrInvalidChunking is returned when overlap and size do not satisfy 0 <= overlap < size.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Chunk is a bounded substring of a source document with its position in that document.
type Chunk struct {
	Text    string // Window content
	Source  string // Document identifier (file path or repository path)
	Ordinal int    // Position in document (0, 1, 2...)
	Title   string // First heading of the source document, if any
}

// Chunker slides a window of Size characters over text, advancing by Size-Overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker after validating its parameters.
func New(size, overlap int) (*Chunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Validate reports whether size and overlap form a usable window.
func Validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d (need 0 <= overlap < size)", ErrInvalidChunking, size, overlap)
	}
	return nil
}

// Size returns the window length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunk texts for text.
// Lengths are counted in runes so multi-byte characters are never cut in half.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// ChunkDocument splits text and tags each window with its source and ordinal.
func (c *Chunker) ChunkDocument(source, title, text string) []Chunk {
	parts := c.Split(text)
	chunks := make([]Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = Chunk{
			Text:    part,
			Source:  source,
			Ordinal: i,
			Title:   title,
		}
	}
	return chunks
}
