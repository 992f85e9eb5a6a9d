package services

import (
	"regexp"
	"strings"
)

// Chunker splits extracted document text into sentence-aligned
// segments for embedding. Sentences are packed greedily up to the
// configured size; segments below the minimum length are dropped as
// noise (page numbers, headers, stray fragments).
type Chunker struct {
	maxSize int
	minSize int
}

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

func NewChunker(maxSize, minSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 800
	}
	if minSize < 0 {
		minSize = 0
	}
	return &Chunker{maxSize: maxSize, minSize: minSize}
}

// Split returns ordered chunks covering the input text. Each chunk
// stays within the size bound unless a single sentence exceeds it, in
// which case that sentence is emitted whole. Empty input yields no
// chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := sentencePattern.FindAllString(text, -1)

	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+1+len(sentence) > c.maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	// Length filter runs after packing so short sentences still
	// merge into full-size chunks first.
	filtered := chunks[:0]
	for _, chunk := range chunks {
		if len(chunk) >= c.minSize {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}
