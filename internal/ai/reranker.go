package ai

import (
	"context"
	"log"
	"sort"
	"strings"
)

// RankedChunk is one candidate passage with its relevance score and
// its position in the input slice.
type RankedChunk struct {
	Content string
	Score   float64
	Index   int
}

// Reranker orders candidate passages by relevance to a question. The
// remote sentence-similarity service is preferred; a lexical overlap
// score takes over whenever that service cannot answer, so ranking
// itself never fails.
type Reranker struct {
	client *HFClient
}

func NewReranker(client *HFClient) *Reranker {
	return &Reranker{client: client}
}

// Score asks the remote similarity service for per-candidate scores.
// Callers that need guaranteed output should use FindMostRelevant.
func (r *Reranker) Score(ctx context.Context, question string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if r.client == nil {
		return nil, &RelevanceServiceError{Reason: ReasonNoCredentials}
	}
	return r.client.Similarity(ctx, question, candidates)
}

// FindMostRelevant returns the topK best candidates in descending
// score order. Remote scoring errors downgrade to lexical overlap
// rather than propagating.
func (r *Reranker) FindMostRelevant(ctx context.Context, question string, candidates []string, topK int) []RankedChunk {
	if len(candidates) == 0 {
		return nil
	}

	scores, err := r.Score(ctx, question, candidates)
	if err != nil {
		log.Printf("Relevance service unavailable, using lexical scoring: %v", err)
		scores = make([]float64, len(candidates))
		for i, c := range candidates {
			scores[i] = lexicalScore(question, c)
		}
	}

	ranked := make([]RankedChunk, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedChunk{Content: c, Score: scores[i], Index: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// lexicalScore measures word overlap between question and passage:
// the fraction of question tokens that also appear in the passage.
// Tokens of two characters or fewer and trailing punctuation are
// ignored so stopwords and sentence endings do not inflate matches.
func lexicalScore(question, passage string) float64 {
	qTokens := lexicalTokens(question)
	if len(qTokens) == 0 {
		return 0
	}
	pTokens := lexicalTokens(passage)
	pSet := make(map[string]struct{}, len(pTokens))
	for _, t := range pTokens {
		pSet[t] = struct{}{}
	}

	matched := 0
	seen := make(map[string]struct{}, len(qTokens))
	for _, t := range qTokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := pSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

func lexicalTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimRight(f, ".,!?;:\"')")
		if len(f) <= 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
