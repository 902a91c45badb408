// Package chunker splits document text into retrieval units. Boundaries are
// a pure function of (text, max size, overlap), so re-chunking an identical
// payload reproduces identical chunk identities.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// MaxOverlapFraction caps overlap so the index cannot grow without bound.
const MaxOverlapFraction = 0.5

// Chunker splits text into bounded segments, preferring sentence boundaries.
type Chunker struct {
	maxSize  int // segment size cap, in runes
	overlap  int // runes carried over between adjacent segments
	lookback int // how far behind the cap a soft boundary is searched
}

// New creates a chunker. overlapFrac is a fraction of maxSize (e.g. 0.15).
func New(maxSize int, overlapFrac float64) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk max size must be positive, got %d: %w", maxSize, domain.ErrValidation)
	}
	if overlapFrac < 0 || overlapFrac > MaxOverlapFraction {
		return nil, fmt.Errorf("overlap fraction must be in [0, %g], got %g: %w",
			MaxOverlapFraction, overlapFrac, domain.ErrValidation)
	}
	return &Chunker{
		maxSize:  maxSize,
		overlap:  int(float64(maxSize) * overlapFrac),
		lookback: maxSize / 4,
	}, nil
}

// Split cuts text into ordered segments of at most maxSize runes. A cut
// never lands inside a sentence when a sentence boundary exists within the
// lookback window; otherwise it falls back to a hard cut at the cap.
// Whitespace-only segments are dropped. Empty input yields no segments.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	var segments []string

	start := 0
	for start < len(runes) {
		end := start + c.maxSize
		if end >= len(runes) {
			appendSegment(&segments, runes[start:])
			break
		}

		cut := c.softBoundary(runes, start, end)
		if cut <= start {
			cut = end // no soft boundary in range, hard cut
		}
		appendSegment(&segments, runes[start:cut])

		next := cut - c.overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return segments
}

// softBoundary scans backward from end within the lookback window for a
// position right after a sentence terminator. Returns start (or less) when
// none is found.
func (c *Chunker) softBoundary(runes []rune, start, end int) int {
	low := end - c.lookback
	if low < start+1 {
		low = start + 1
	}
	for i := end; i >= low; i-- {
		if isSentenceEnd(runes[i-1]) && (i == len(runes) || unicode.IsSpace(runes[i])) {
			return i
		}
	}
	return start
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

func appendSegment(segments *[]string, runes []rune) {
	s := strings.TrimSpace(string(runes))
	if s != "" {
		*segments = append(*segments, s)
	}
}
