// Package chunker splits document text into bounded, overlapping chunks.
//
// The split is line-oriented: a window of up to maxLines lines is emitted at
// a time, seeded with the tail of the previous window for overlap. Windows
// whose joined content exceeds maxChars shrink gracefully: first the overlap
// is halved away, then trailing lines are dropped, and as a last resort a
// single oversized line is hard-split into maxChars-sized pieces.
package chunker

import (
	"fmt"
	"strings"
)

// Default chunking parameters.
const (
	DefaultMaxLines = 40
	DefaultOverlap  = 5
	DefaultMaxChars = 4000
)

// Chunker is a deterministic, stateless text splitter. A Chunker is safe for
// concurrent use; Chunk carries no state across calls.
type Chunker struct {
	maxLines int
	overlap  int
	maxChars int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxLines sets the maximum number of lines per chunk.
func WithMaxLines(n int) Option {
	return func(c *Chunker) { c.maxLines = n }
}

// WithOverlap sets the number of lines shared between consecutive chunks.
func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlap = n }
}

// WithMaxChars sets the maximum chunk length in bytes.
func WithMaxChars(n int) Option {
	return func(c *Chunker) { c.maxChars = n }
}

// New creates a Chunker. Invalid parameters fail construction, not chunking:
// maxLines >= 1, overlap >= 0, overlap < maxLines, maxChars >= 1.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		maxLines: DefaultMaxLines,
		overlap:  DefaultOverlap,
		maxChars: DefaultMaxChars,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.maxLines < 1 {
		return nil, fmt.Errorf("chunker: maxLines must be >= 1, got %d", c.maxLines)
	}
	if c.overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must be >= 0, got %d", c.overlap)
	}
	if c.overlap >= c.maxLines {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than maxLines %d", c.overlap, c.maxLines)
	}
	if c.maxChars < 1 {
		return nil, fmt.Errorf("chunker: maxChars must be >= 1, got %d", c.maxChars)
	}
	return c, nil
}

// Chunk splits text into ordered chunks. Only non-empty chunks are emitted;
// every emitted chunk is at most maxChars bytes long.
func (c *Chunker) Chunk(text string) []string {
	lines := strings.Split(text, "\n")
	n := len(lines)

	var chunks []string
	prevStart := -1
	prevEnd := 0
	nextOverlap := 0 // the first window has no tail to seed from

	for prevEnd < n {
		curOverlap := nextOverlap

		// Seed the window with the previous tail, never regressing past
		// one line beyond the previous start.
		start := prevEnd - curOverlap
		if start < prevStart+1 {
			start = prevStart + 1
		}
		end := start + c.maxLines
		if end > n {
			end = n
		}

		hardSplit := false
		for {
			content := strings.Join(lines[start:end], "\n")
			if len(content) <= c.maxChars {
				if windowHasText(lines[start:end]) {
					chunks = append(chunks, content)
				}
				break
			}

			if curOverlap > 0 {
				// Shed half of the seeded overlap from the window head.
				curOverlap /= 2
				if s := prevEnd - curOverlap; s > start {
					start = s
				}
				continue
			}

			if end-start > 1 {
				end--
				continue
			}

			// A single line still exceeds maxChars: hard-split its raw
			// bytes and advance past the whole line. Overlap is
			// suppressed for the next window so the oversized line is
			// never re-emitted.
			chunks = append(chunks, hardSplitLine(lines[start], c.maxChars)...)
			hardSplit = true
			break
		}

		prevStart = start
		prevEnd = end
		if hardSplit {
			nextOverlap = 0
		} else {
			nextOverlap = c.overlap
		}
	}

	return chunks
}

// windowHasText reports whether any line in the window is non-empty. A
// window of blank lines joins to newlines only and is not worth emitting.
func windowHasText(lines []string) bool {
	for _, line := range lines {
		if line != "" {
			return true
		}
	}
	return false
}

// hardSplitLine cuts line into pieces of at most maxChars bytes.
func hardSplitLine(line string, maxChars int) []string {
	pieces := make([]string, 0, len(line)/maxChars+1)
	for len(line) > maxChars {
		pieces = append(pieces, line[:maxChars])
		line = line[maxChars:]
	}
	if line != "" {
		pieces = append(pieces, line)
	}
	return pieces
}
