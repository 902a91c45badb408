package chunker

import (
	"strings"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(0, 0.1); err == nil {
		t.Error("zero max size should be rejected")
	}
	if _, err := New(-5, 0.1); err == nil {
		t.Error("negative max size should be rejected")
	}
	if _, err := New(100, -0.1); err == nil {
		t.Error("negative overlap should be rejected")
	}
	if _, err := New(100, 0.9); err == nil {
		t.Error("overlap above cap should be rejected")
	}
	if _, err := New(100, 0.15); err != nil {
		t.Errorf("valid parameters rejected: %v", err)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	c, _ := New(100, 0.1)
	if got := c.Split(""); got != nil {
		t.Errorf("empty input should yield no segments, got %d", len(got))
	}
	if got := c.Split("   \n\t  "); got != nil {
		t.Errorf("whitespace input should yield no segments, got %d", len(got))
	}
}

func TestSplit_ShortTextSingleSegment(t *testing.T) {
	c, _ := New(200, 0.1)
	got := c.Split("The pump runs at 2400 RPM.")
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0] != "The pump runs at 2400 RPM." {
		t.Errorf("unexpected segment %q", got[0])
	}
}

func TestSplit_PrefersSentenceBoundaries(t *testing.T) {
	text := "Error E42 indicates overheating. Check the coolant level first. " +
		"If the level is fine, inspect the fan assembly. Replace worn bearings promptly."
	c, _ := New(80, 0)

	segments := c.Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected several segments, got %d", len(segments))
	}
	for i, s := range segments[:len(segments)-1] {
		last := s[len(s)-1]
		if last != '.' && last != '!' && last != '?' {
			t.Errorf("segment %d does not end on a sentence boundary: %q", i, s)
		}
	}
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	text := strings.Repeat("Short sentence here. ", 50)
	c, _ := New(120, 0.15)

	for _, s := range c.Split(text) {
		if n := len([]rune(s)); n > 120 {
			t.Errorf("segment exceeds max size: %d runes", n)
		}
	}
}

func TestSplit_HardCutFallback(t *testing.T) {
	// No sentence boundary anywhere: must fall back to hard cuts, not loop.
	text := strings.Repeat("x", 250)
	c, _ := New(100, 0)

	segments := c.Split(text)
	if len(segments) != 3 {
		t.Fatalf("expected 3 hard-cut segments, got %d", len(segments))
	}
	if len(segments[0]) != 100 || len(segments[1]) != 100 || len(segments[2]) != 50 {
		t.Errorf("unexpected segment lengths %d/%d/%d",
			len(segments[0]), len(segments[1]), len(segments[2]))
	}
}

func TestSplit_OverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // no soft boundaries
	c, _ := New(100, 0.2)

	segments := c.Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}
	// Each segment after the first must start with the tail of its predecessor.
	tail := segments[0][len(segments[0])-20:]
	if !strings.HasPrefix(segments[1], tail) {
		t.Errorf("segment 1 should start with the 20-rune tail of segment 0")
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := "First sentence of the manual. Second sentence follows! Third one asks a question? " +
		strings.Repeat("Filler sentence to push past a single chunk. ", 20)
	c, _ := New(150, 0.15)

	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("segment counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("segment %d differs between identical calls", i)
		}
	}
}

func TestSplit_UnicodeSafe(t *testing.T) {
	text := strings.Repeat("温度が高すぎます。", 40)
	c, _ := New(50, 0.1)

	for _, s := range c.Split(text) {
		if !strings.HasSuffix(s, "。") && len([]rune(s)) > 50 {
			t.Errorf("segment exceeds cap: %q", s)
		}
		// A hard cut through a rune would produce invalid UTF-8.
		if strings.ContainsRune(s, '�') {
			t.Errorf("segment contains replacement rune: %q", s)
		}
	}
}
