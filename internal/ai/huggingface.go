package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// HFClient talks to the Hugging Face inference endpoints used by the
// retrieval core: feature extraction (embeddings), sentence similarity
// and chat completions. All calls carry explicit timeouts; repeated
// failures open the circuit breaker so a degraded upstream does not
// stall document processing.
type HFClient struct {
	token         string
	embeddingsURL string
	similarityURL string
	chatURL       string
	chatModel     string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
	rateLimiter   *rate.Limiter
}

// HFOptions configures an HFClient. Zero values fall back to the
// public inference endpoints.
type HFOptions struct {
	Token         string
	EmbeddingsURL string
	SimilarityURL string
	ChatURL       string
	ChatModel     string
	Timeout       time.Duration
}

func NewHFClient(opts HFOptions) *HFClient {
	if opts.Token == "" {
		opts.Token = os.Getenv("HF_TOKEN")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "HuggingFaceAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &HFClient{
		token:         opts.Token,
		embeddingsURL: opts.EmbeddingsURL,
		similarityURL: opts.SimilarityURL,
		chatURL:       opts.ChatURL,
		chatModel:     opts.ChatModel,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		breaker:       breaker,
		rateLimiter:   rate.NewLimiter(rate.Limit(2), 5),
	}
}

// HasToken reports whether a credential is configured. Absence
// downgrades capability instead of erroring.
func (c *HFClient) HasToken() bool { return c.token != "" }

type hfEmbeddingsRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

// Embeddings calls the feature-extraction endpoint, one vector per
// input text, order preserved.
func (c *HFClient) Embeddings(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("hf-client")
	ctx, span := tracer.Start(ctx, "hf.embeddings")
	defer span.End()
	span.SetAttributes(attribute.Int("hf.input_count", len(texts)))

	body, err := json.Marshal(hfEmbeddingsRequest{
		Inputs:  texts,
		Options: hfOptions{WaitForModel: true, UseCache: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	respBody, status, err := c.post(ctx, c.embeddingsURL, body)
	if err != nil {
		span.SetAttributes(attribute.Bool("hf.error", true))
		if isTimeout(err) {
			return nil, &EmbeddingUnavailableError{Provider: "api", Reason: ReasonTimeout, Err: err}
		}
		return nil, &EmbeddingUnavailableError{Provider: "api", Reason: ReasonAPI, Err: err}
	}

	switch {
	case status == http.StatusOK:
		var vectors [][]float32
		if err := json.Unmarshal(respBody, &vectors); err != nil {
			return nil, &EmbeddingUnavailableError{Provider: "api", Reason: ReasonAPI, Err: err}
		}
		if len(vectors) != len(texts) {
			return nil, &EmbeddingUnavailableError{
				Provider: "api",
				Reason:   ReasonAPI,
				Err:      fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors)),
			}
		}
		return vectors, nil

	case status == http.StatusBadRequest:
		// 400 details carry the actual cause; refine the reason so
		// callers can report a precise error.
		detail := strings.ToLower(string(respBody))
		reason := ReasonBadInput
		if strings.Contains(detail, "rate limit") {
			reason = ReasonRateLimited
		} else if strings.Contains(detail, "too long") {
			reason = ReasonInputTooLong
		} else if strings.Contains(detail, "invalid input") {
			reason = ReasonBadInput
		}
		return nil, &EmbeddingUnavailableError{
			Provider: "api",
			Reason:   reason,
			Err:      fmt.Errorf("API validation error: %s", string(respBody)),
		}

	case status == http.StatusTooManyRequests:
		return nil, &EmbeddingUnavailableError{
			Provider: "api",
			Reason:   ReasonRateLimited,
			Err:      fmt.Errorf("rate limit exceeded"),
		}

	default:
		return nil, &EmbeddingUnavailableError{
			Provider: "api",
			Reason:   ReasonAPI,
			Err:      fmt.Errorf("API error: %d", status),
		}
	}
}

type hfSimilarityRequest struct {
	Inputs hfSimilarityInputs `json:"inputs"`
}

type hfSimilarityInputs struct {
	SourceSentence string   `json:"source_sentence"`
	Sentences      []string `json:"sentences"`
}

// Similarity scores one source sentence against many targets,
// returning one score per target in input order.
func (c *HFClient) Similarity(ctx context.Context, source string, targets []string) ([]float64, error) {
	if !c.HasToken() {
		return nil, &RelevanceServiceError{Reason: ReasonNoCredentials}
	}

	tracer := otel.Tracer("hf-client")
	ctx, span := tracer.Start(ctx, "hf.similarity")
	defer span.End()
	span.SetAttributes(attribute.Int("hf.target_count", len(targets)))

	body, err := json.Marshal(hfSimilarityRequest{
		Inputs: hfSimilarityInputs{SourceSentence: source, Sentences: targets},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal similarity request: %w", err)
	}

	respBody, status, err := c.post(ctx, c.similarityURL, body)
	if err != nil {
		span.SetAttributes(attribute.Bool("hf.error", true))
		if isTimeout(err) {
			return nil, &RelevanceServiceError{Reason: ReasonTimeout, Err: err}
		}
		return nil, &RelevanceServiceError{Reason: ReasonAPI, Err: err}
	}

	switch status {
	case http.StatusOK:
		var scores []float64
		if err := json.Unmarshal(respBody, &scores); err != nil {
			return nil, &RelevanceServiceError{Status: status, Reason: ReasonAPI, Err: err}
		}
		if len(scores) != len(targets) {
			return nil, &RelevanceServiceError{
				Status: status,
				Reason: ReasonAPI,
				Err:    fmt.Errorf("expected %d scores, got %d", len(targets), len(scores)),
			}
		}
		return scores, nil
	case http.StatusUnauthorized:
		return nil, &RelevanceServiceError{Status: status, Reason: ReasonAuth}
	case http.StatusTooManyRequests:
		return nil, &RelevanceServiceError{Status: status, Reason: ReasonRateLimited}
	default:
		return nil, &RelevanceServiceError{Status: status, Reason: ReasonAPI}
	}
}

type hfChatRequest struct {
	Messages    []hfChatMessage `json:"messages"`
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type hfChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type hfChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends a single user prompt to the chat endpoint and
// returns the generated text.
func (c *HFClient) ChatCompletion(ctx context.Context, prompt string) (string, error) {
	if !c.HasToken() {
		return "", &GenerationServiceError{Reason: ReasonNoCredentials}
	}

	tracer := otel.Tracer("hf-client")
	ctx, span := tracer.Start(ctx, "hf.chat_completion")
	defer span.End()

	body, err := json.Marshal(hfChatRequest{
		Messages:    []hfChatMessage{{Role: "user", Content: prompt}},
		Model:       c.chatModel,
		MaxTokens:   200,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	respBody, status, err := c.post(ctx, c.chatURL, body)
	if err != nil {
		span.SetAttributes(attribute.Bool("hf.error", true))
		if isTimeout(err) {
			return "", &GenerationServiceError{Reason: ReasonTimeout, Err: err}
		}
		return "", &GenerationServiceError{Reason: ReasonAPI, Err: err}
	}

	switch status {
	case http.StatusOK:
		var chatResp hfChatResponse
		if err := json.Unmarshal(respBody, &chatResp); err != nil {
			return "", &GenerationServiceError{Status: status, Reason: ReasonAPI, Err: err}
		}
		if len(chatResp.Choices) == 0 {
			return "", &GenerationServiceError{
				Status: status,
				Reason: ReasonAPI,
				Err:    fmt.Errorf("no choices in response"),
			}
		}
		return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
	case http.StatusUnauthorized:
		return "", &GenerationServiceError{Status: status, Reason: ReasonAuth}
	case http.StatusTooManyRequests:
		return "", &GenerationServiceError{Status: status, Reason: ReasonRateLimited}
	default:
		return "", &GenerationServiceError{Status: status, Reason: ReasonAPI}
	}
}

// post performs one rate-limited, breaker-guarded request and returns
// the raw body with the status code. Transport errors come back as
// errors; HTTP-level failures are left to the caller to classify.
func (c *HFClient) post(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		return &hfRawResponse{body: respBody, status: resp.StatusCode}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, 0, fmt.Errorf("upstream temporarily unavailable: %w", err)
		}
		return nil, 0, err
	}

	raw := result.(*hfRawResponse)
	return raw.body, raw.status, nil
}

type hfRawResponse struct {
	body   []byte
	status int
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
