package ai

import "fmt"

// Failure reasons attached to provider errors after classifying the
// HTTP response. Callers branch on these instead of parsing messages.
const (
	ReasonNoCredentials = "no_credentials"
	ReasonRateLimited   = "rate_limited"
	ReasonInputTooLong  = "input_too_long"
	ReasonBadInput      = "bad_input"
	ReasonTimeout       = "timeout"
	ReasonAuth          = "auth"
	ReasonAPI           = "api_error"
)

// EmbeddingUnavailableError signals that a provider could not produce
// real embeddings. It is always recoverable: callers fall back to the
// deterministic embedder instead of failing the pipeline.
type EmbeddingUnavailableError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *EmbeddingUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embeddings unavailable (%s, %s): %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("embeddings unavailable (%s, %s)", e.Provider, e.Reason)
}

func (e *EmbeddingUnavailableError) Unwrap() error { return e.Err }

// RelevanceServiceError signals that the remote similarity service
// failed. Recoverable: the reranker switches to lexical scoring.
type RelevanceServiceError struct {
	Status int
	Reason string
	Err    error
}

func (e *RelevanceServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relevance service error (%s, status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("relevance service error (%s, status %d)", e.Reason, e.Status)
}

func (e *RelevanceServiceError) Unwrap() error { return e.Err }

// GenerationServiceError is the classified failure of the generation
// backend. It never leaves this package as an error: the generator
// converts it into a user-facing message.
type GenerationServiceError struct {
	Status int
	Reason string
	Err    error
}

func (e *GenerationServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation service error (%s, status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("generation service error (%s, status %d)", e.Reason, e.Status)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }
