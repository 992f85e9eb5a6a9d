package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestHFClient(url string) *HFClient {
	return NewHFClient(HFOptions{
		Token:         "test-token",
		EmbeddingsURL: url,
		SimilarityURL: url,
		ChatURL:       url,
		ChatModel:     "test-model",
		Timeout:       5 * time.Second,
	})
}

func TestRemoteGeneratorSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"  Paris is the capital.  "}}]}`))
	}))
	defer server.Close()

	g := NewRemoteGenerator(newTestHFClient(server.URL))
	answer := g.Answer(context.Background(), "What is the capital of France?", "France's capital is Paris.")

	if answer != "Paris is the capital." {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestRemoteGeneratorNoToken(t *testing.T) {
	g := NewRemoteGenerator(&HFClient{})

	answer := g.Answer(context.Background(), "q", "ctx")
	if !strings.Contains(answer, "no API token available") {
		t.Fatalf("expected missing-token message, got %q", answer)
	}
}

func TestRemoteGeneratorStatusMessages(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusUnauthorized, `{}`, "Authentication error. Please check your HF_TOKEN."},
		{http.StatusTooManyRequests, `{}`, "Too many requests. Please try again in a few minutes."},
		{http.StatusServiceUnavailable, `{}`, "AI service error: 503. Please try again later."},
		{http.StatusOK, `{"choices":[]}`, "Sorry, got an unexpected response from the AI."},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		g := NewRemoteGenerator(newTestHFClient(server.URL))
		answer := g.Answer(context.Background(), "q", "ctx")
		server.Close()

		if answer != tt.want {
			t.Errorf("status %d: got %q, want %q", tt.status, answer, tt.want)
		}
	}
}

func TestExtractiveGeneratorQuotesBestSentences(t *testing.T) {
	g := &ExtractiveGenerator{}

	contextText := "Machine learning is a subset of artificial intelligence. The cafeteria serves lunch daily. Machine learning models learn from data."
	answer := g.Answer(context.Background(), "What is machine learning?", contextText)

	if !strings.HasPrefix(answer, "Based on the document: ") {
		t.Fatalf("expected extractive prefix, got %q", answer)
	}
	if !strings.Contains(answer, "Machine learning") {
		t.Errorf("answer missing relevant sentence: %q", answer)
	}
	if strings.Contains(answer, "cafeteria") {
		t.Errorf("irrelevant sentence quoted: %q", answer)
	}
}

func TestExtractiveGeneratorNoMatch(t *testing.T) {
	g := &ExtractiveGenerator{}

	answer := g.Answer(context.Background(), "quantum entanglement", "The cafeteria serves lunch daily.")
	if answer != "I couldn't find specific information to answer your question in the document." {
		t.Fatalf("expected no-match message, got %q", answer)
	}
}

func TestBuildAnswerPrompt(t *testing.T) {
	prompt := buildAnswerPrompt("Why?", "Because.")

	if !strings.Contains(prompt, "Context: Because.") {
		t.Errorf("prompt missing context: %q", prompt)
	}
	if !strings.Contains(prompt, "Question: Why?") {
		t.Errorf("prompt missing question: %q", prompt)
	}
	if !strings.Contains(prompt, "based only on the context above") {
		t.Errorf("prompt missing instruction: %q", prompt)
	}
}
