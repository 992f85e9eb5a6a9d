package services

import (
	"strings"
	"testing"
)

func TestChunkerEmptyInput(t *testing.T) {
	c := NewChunker(800, 50)

	if got := c.Split(""); len(got) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(got))
	}
	if got := c.Split("   \n\t  "); len(got) != 0 {
		t.Fatalf("expected no chunks for whitespace input, got %d", len(got))
	}
}

func TestChunkerPacksSentences(t *testing.T) {
	c := NewChunker(100, 10)

	text := "This is the first sentence of the document. Here comes the second one with more words. And a third sentence to finish."
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected text to split into multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds max size: %d chars", i, len(chunk))
		}
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestChunkerSingleChunkWhenSmall(t *testing.T) {
	c := NewChunker(800, 10)

	text := "Machine learning is great. Python helps ML a lot."
	chunks := c.Split(text)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], "Machine learning is great") {
		t.Errorf("chunk lost content: %q", chunks[0])
	}
}

func TestChunkerOversizedSentenceEmittedWhole(t *testing.T) {
	c := NewChunker(50, 10)

	giant := strings.Repeat("word ", 40) + "end."
	chunks := c.Split(giant)

	if len(chunks) != 1 {
		t.Fatalf("expected oversized sentence as one chunk, got %d", len(chunks))
	}
	if len(chunks[0]) <= 50 {
		t.Errorf("expected chunk larger than max size, got %d chars", len(chunks[0]))
	}
}

func TestChunkerMinLengthFilterDropsTrivia(t *testing.T) {
	c := NewChunker(800, 50)

	// Tiny sentences merge into one chunk below the minimum, which
	// the filter then drops.
	chunks := c.Split("A. B. C.")
	if len(chunks) != 0 {
		t.Fatalf("expected trivial chunks to be filtered, got %v", chunks)
	}
}

func TestChunkerPreservesOrder(t *testing.T) {
	c := NewChunker(60, 5)

	text := "Alpha comes first in this text. Bravo follows right after it. Charlie is the third marker here. Delta closes out the sequence."
	chunks := c.Split(text)

	joined := strings.Join(chunks, " ")
	positions := []int{
		strings.Index(joined, "Alpha"),
		strings.Index(joined, "Bravo"),
		strings.Index(joined, "Charlie"),
		strings.Index(joined, "Delta"),
	}
	for i, pos := range positions {
		if pos < 0 {
			t.Fatalf("marker %d missing from chunks", i)
		}
		if i > 0 && pos < positions[i-1] {
			t.Fatalf("markers out of order: %v", positions)
		}
	}
}
