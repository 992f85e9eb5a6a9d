package ai

import (
	"context"
	"math"
	"testing"
)

func TestLexicalScore(t *testing.T) {
	tests := []struct {
		name     string
		question string
		passage  string
		want     float64
	}{
		{
			name:     "full overlap",
			question: "machine learning",
			passage:  "machine learning is great",
			want:     1.0,
		},
		{
			name:     "partial overlap",
			question: "machine learning basics",
			passage:  "machine learning is great",
			want:     2.0 / 3.0,
		},
		{
			name:     "no overlap",
			question: "weather forecast",
			passage:  "machine learning is great",
			want:     0,
		},
		{
			name:     "short tokens ignored",
			question: "is ML ok",
			passage:  "is it ok",
			want:     0,
		},
		{
			name:     "trailing punctuation stripped",
			question: "What is chunking?",
			passage:  "Chunking splits text into pieces.",
			want:     0.5,
		},
		{
			name:     "empty question",
			question: "",
			passage:  "anything",
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexicalScore(tt.question, tt.passage)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("lexicalScore(%q, %q) = %f, want %f", tt.question, tt.passage, got, tt.want)
			}
		})
	}
}

func TestFindMostRelevantLexicalFallback(t *testing.T) {
	// No client configured means remote scoring always fails, so
	// ranking must come from lexical overlap without erroring.
	r := NewReranker(nil)

	candidates := []string{
		"The cafeteria serves lunch from eleven to two",
		"Machine learning is a subset of artificial intelligence",
		"Python is commonly used for machine learning work",
	}
	ranked := r.FindMostRelevant(context.Background(), "What is machine learning?", candidates, 2)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked chunks, got %d", len(ranked))
	}
	if ranked[0].Score < ranked[1].Score {
		t.Errorf("results not sorted descending: %f < %f", ranked[0].Score, ranked[1].Score)
	}
	for _, rc := range ranked {
		if rc.Index == 0 {
			t.Errorf("irrelevant cafeteria chunk outranked relevant ones: %+v", ranked)
		}
	}
}

func TestFindMostRelevantEmptyCandidates(t *testing.T) {
	r := NewReranker(nil)
	if got := r.FindMostRelevant(context.Background(), "question", nil, 3); got != nil {
		t.Fatalf("expected nil for empty candidates, got %v", got)
	}
}

func TestFindMostRelevantKeepsInputIndex(t *testing.T) {
	r := NewReranker(nil)

	candidates := []string{
		"nothing about the topic here",
		"distributed tracing shows request flow across services",
	}
	ranked := r.FindMostRelevant(context.Background(), "How does distributed tracing work?", candidates, 5)

	if len(ranked) != 2 {
		t.Fatalf("expected all candidates ranked, got %d", len(ranked))
	}
	if ranked[0].Index != 1 {
		t.Errorf("top result should reference original index 1, got %d", ranked[0].Index)
	}
}
