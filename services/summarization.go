package services

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiSummarizer generates a short document summary after
// processing. It is optional: construction fails without an API key
// and the pipeline simply skips summaries.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
}

func NewGeminiSummarizer(ctx context.Context, apiKey, model string) (*GeminiSummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no Gemini API key configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiSummarizer{client: client, model: model}, nil
}

func (s *GeminiSummarizer) Close() error {
	return s.client.Close()
}

// Summarize returns a concise summary of the document text. Short
// texts come back unchanged, skipping the API call.
func (s *GeminiSummarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	if len(text) < 2000 {
		return strings.TrimSpace(text), nil
	}

	model := s.client.GenerativeModel(s.model)
	prompt := buildSummarizationPrompt(title, text)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}

	summary := extractGeminiText(resp)
	if summary == "" {
		return "", fmt.Errorf("summarization returned no text")
	}
	return summary, nil
}

func buildSummarizationPrompt(title, text string) string {
	return fmt.Sprintf(`Summarize the following document concisely, preserving:
1. Key information and facts
2. Important concepts
3. Names, numbers, and technical terms

Document title: %s

Text to summarize:
%s

Provide a comprehensive yet concise summary:`, title, truncateText(text, 8000))
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	var result strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.WriteString(string(text))
				}
			}
		}
	}
	return strings.TrimSpace(result.String())
}

func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
