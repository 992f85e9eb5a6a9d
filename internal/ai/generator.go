package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
)

// Generator produces an answer to a question from retrieved context.
// Answer never returns an error: every failure mode maps to a safe
// user-facing string so the ask endpoint always has something to say.
type Generator interface {
	Name() string
	Answer(ctx context.Context, question, contextText string) string
}

// NewGenerator selects an answer backend. "auto" uses the remote chat
// service when a token is configured and the extractive summarizer
// otherwise.
func NewGenerator(provider string, client *HFClient) Generator {
	switch provider {
	case "remote":
		log.Printf("Answer provider: remote")
		return NewRemoteGenerator(client)
	case "extractive":
		log.Printf("Answer provider: extractive")
		return &ExtractiveGenerator{}
	default: // auto
		if client != nil && client.HasToken() {
			log.Printf("Answer provider: remote")
			return NewRemoteGenerator(client)
		}
		log.Printf("Answer provider: extractive")
		return &ExtractiveGenerator{}
	}
}

// RemoteGenerator asks the chat completion service, translating every
// failure into a stable message instead of an error.
type RemoteGenerator struct {
	client *HFClient
}

func NewRemoteGenerator(client *HFClient) *RemoteGenerator {
	return &RemoteGenerator{client: client}
}

func (g *RemoteGenerator) Name() string { return "remote" }

func (g *RemoteGenerator) Answer(ctx context.Context, question, contextText string) string {
	if g.client == nil || !g.client.HasToken() {
		return "Sorry, no API token available for AI responses. Set HF_TOKEN in your environment."
	}

	prompt := buildAnswerPrompt(question, contextText)
	answer, err := g.client.ChatCompletion(ctx, prompt)
	if err == nil {
		return answer
	}

	var genErr *GenerationServiceError
	if !errors.As(err, &genErr) {
		log.Printf("AI answer error: %v", err)
		return "An error occurred while getting AI response. Please try again."
	}

	switch {
	case genErr.Reason == ReasonNoCredentials:
		return "Sorry, no API token available for AI responses. Set HF_TOKEN in your environment."
	case genErr.Reason == ReasonTimeout:
		return "Request timed out. Please try again."
	case genErr.Status == http.StatusUnauthorized:
		return "Authentication error. Please check your HF_TOKEN."
	case genErr.Status == http.StatusTooManyRequests:
		return "Too many requests. Please try again in a few minutes."
	case genErr.Status == http.StatusOK:
		return "Sorry, got an unexpected response from the AI."
	case genErr.Status != 0:
		log.Printf("AI API error: %d", genErr.Status)
		return fmt.Sprintf("AI service error: %d. Please try again later.", genErr.Status)
	default:
		log.Printf("AI answer error: %v", genErr)
		return "An error occurred while getting AI response. Please try again."
	}
}

func buildAnswerPrompt(question, contextText string) string {
	var b strings.Builder
	b.WriteString("Context: ")
	b.WriteString(contextText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nPlease answer the question based only on the context above. Be concise and helpful.")
	return b.String()
}

// ExtractiveGenerator answers without any model: it scores context
// sentences by word overlap with the question and quotes the best two.
type ExtractiveGenerator struct{}

func (g *ExtractiveGenerator) Name() string { return "extractive" }

func (g *ExtractiveGenerator) Answer(ctx context.Context, question, contextText string) string {
	questionWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(question)) {
		questionWords[w] = struct{}{}
	}

	type scored struct {
		overlap  int
		sentence string
	}
	var candidates []scored
	for _, sentence := range strings.Split(contextText, ".") {
		overlap := 0
		for _, w := range strings.Fields(strings.ToLower(sentence)) {
			if _, ok := questionWords[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			trimmed := strings.TrimSpace(sentence)
			if trimmed != "" {
				candidates = append(candidates, scored{overlap: overlap, sentence: trimmed})
			}
		}
	}

	if len(candidates) == 0 {
		return "I couldn't find specific information to answer your question in the document."
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].overlap > candidates[j].overlap
	})
	best := candidates
	if len(best) > 2 {
		best = best[:2]
	}
	parts := make([]string, len(best))
	for i, c := range best {
		parts[i] = c.sentence
	}
	return "Based on the document: " + strings.Join(parts, " ")
}
