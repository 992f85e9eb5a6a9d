package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"document-qa-backend/internal/ai"
	"document-qa-backend/internal/config"
	"document-qa-backend/internal/telemetry"
	"document-qa-backend/internal/vectorstore"
	"document-qa-backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Fixed answers for the degenerate query paths. Returned without
// invoking any provider.
const (
	msgNoContent   = "I couldn't find relevant information to answer your question."
	msgNotRelevant = "I found content in your documents, but nothing relevant enough to answer your question."
)

// DocumentReader is the storage surface the processor needs. The
// mongo-backed store satisfies it; tests substitute an in-memory one.
type DocumentReader interface {
	GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error
	SetProcessed(ctx context.Context, id primitive.ObjectID, processed bool, chunkCount int) error
	SetSummary(ctx context.Context, id primitive.ObjectID, summary string) error
	ReplaceChunks(ctx context.Context, documentID primitive.ObjectID, chunks []models.DocumentChunk) error
	ChunksByDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.DocumentChunk, error)
	ProcessedChunks(ctx context.Context) ([]models.DocumentChunk, error)
}

// VectorIndex is the similarity index surface the processor needs.
type VectorIndex interface {
	Add(vectors [][]float32, metas []vectorstore.ChunkMeta) error
	RemoveDocument(documentID string) error
	Search(query []float32, topK int) ([]vectorstore.SearchResult, error)
}

// Ranker orders candidate chunks by relevance to a question.
type Ranker interface {
	FindMostRelevant(ctx context.Context, question string, candidates []string, topK int) []ai.RankedChunk
}

// Summarizer produces a short document summary, best-effort.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
}

// Processor runs the document pipeline and answers questions over the
// processed corpus.
type Processor struct {
	cfg        *config.Config
	store      DocumentReader
	index      VectorIndex
	extractor  *TextExtractor
	chunker    *Chunker
	embedder   ai.Embedder
	reranker   Ranker
	generator  ai.Generator
	summarizer Summarizer
	cache      *AnswerCache
	metrics    *telemetry.Metrics
}

// ProcessorOptions wires the processor's collaborators. Summarizer,
// Cache and Metrics are optional.
type ProcessorOptions struct {
	Config     *config.Config
	Store      DocumentReader
	Index      VectorIndex
	Embedder   ai.Embedder
	Reranker   Ranker
	Generator  ai.Generator
	Summarizer Summarizer
	Cache      *AnswerCache
	Metrics    *telemetry.Metrics
}

func NewProcessor(opts ProcessorOptions) *Processor {
	return &Processor{
		cfg:        opts.Config,
		store:      opts.Store,
		index:      opts.Index,
		extractor:  NewTextExtractor(),
		chunker:    NewChunker(opts.Config.MaxChunkSize, opts.Config.MinChunkSize),
		embedder:   ai.WithFallback(opts.Embedder),
		reranker:   opts.Reranker,
		generator:  opts.Generator,
		summarizer: opts.Summarizer,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
	}
}

// ProcessDocument runs extract, chunk, embed, persist and index for
// one document. Failures reset the processed flag and record the
// error so a later retry starts clean.
func (p *Processor) ProcessDocument(ctx context.Context, documentID primitive.ObjectID) error {
	start := time.Now()

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID.Hex(), err)
	}

	if err := p.store.SetStatus(ctx, doc.ID, models.StatusProcessing, ""); err != nil {
		return err
	}

	if err := p.processInner(ctx, doc); err != nil {
		if p.metrics != nil {
			p.metrics.RecordProcessing(time.Since(start).Seconds(), models.StatusFailed)
		}
		if resetErr := p.store.SetProcessed(ctx, doc.ID, false, 0); resetErr != nil {
			log.Printf("Failed to reset processed flag for %s: %v", doc.ID.Hex(), resetErr)
		}
		if statusErr := p.store.SetStatus(ctx, doc.ID, models.StatusFailed, err.Error()); statusErr != nil {
			log.Printf("Failed to record failure for %s: %v", doc.ID.Hex(), statusErr)
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordProcessing(time.Since(start).Seconds(), models.StatusCompleted)
	}
	return nil
}

func (p *Processor) processInner(ctx context.Context, doc *models.Document) error {
	start := time.Now()

	text, err := p.extractor.Extract(doc.FilePath)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	segments := p.chunker.Split(text)

	chunks := make([]models.DocumentChunk, len(segments))
	for i, content := range segments {
		chunks[i] = models.DocumentChunk{
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			Content:     content,
			EmbeddingID: fmt.Sprintf("%s:%d", doc.ID.Hex(), i),
		}
	}
	if err := p.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}

	// Reprocessing replaces the document's index entries wholesale,
	// mirroring the chunk swap above.
	if err := p.index.RemoveDocument(doc.ID.Hex()); err != nil {
		return fmt.Errorf("failed to clear old index entries: %w", err)
	}

	if len(segments) > 0 {
		vectors, err := p.embedder.Embed(ctx, segments)
		if p.metrics != nil {
			p.metrics.RecordEmbeddingCall(p.embedder.Name(), err == nil)
		}
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}

		metas := make([]vectorstore.ChunkMeta, len(segments))
		for i, content := range segments {
			metas[i] = vectorstore.ChunkMeta{
				DocumentID: doc.ID.Hex(),
				ChunkID:    chunks[i].EmbeddingID,
				ChunkIndex: i,
				Title:      doc.Title,
				Content:    content,
			}
		}
		if err := p.index.Add(vectors, metas); err != nil {
			return fmt.Errorf("failed to index embeddings: %w", err)
		}
	}

	if err := p.store.SetProcessed(ctx, doc.ID, true, len(segments)); err != nil {
		return fmt.Errorf("failed to mark document processed: %w", err)
	}

	if p.summarizer != nil && text != "" {
		if summary, err := p.summarizer.Summarize(ctx, doc.Title, text); err != nil {
			log.Printf("Summarization skipped for %s: %v", doc.ID.Hex(), err)
		} else if summary != "" {
			if err := p.store.SetSummary(ctx, doc.ID, summary); err != nil {
				log.Printf("Failed to store summary for %s: %v", doc.ID.Hex(), err)
			}
		}
	}

	log.Printf("Processed document %s: %d chunks in %v", doc.ID.Hex(), len(segments), time.Since(start))
	return nil
}

// AnswerQuestion runs retrieval-augmented answering. scope limits
// candidates to one document when non-nil. The returned string is
// always safe to show the user; errors only surface for storage
// failures.
func (p *Processor) AnswerQuestion(ctx context.Context, question string, scope *primitive.ObjectID) (string, bool, error) {
	if p.cache != nil {
		if answer, ok := p.cache.Get(ctx, question, scope); ok {
			p.countQuestion("cached")
			return answer, true, nil
		}
	}

	var (
		chunks []models.DocumentChunk
		err    error
	)
	if scope != nil {
		chunks, err = p.store.ChunksByDocument(ctx, *scope)
	} else {
		// Corpus-wide answering only sees completed documents;
		// in-flight and failed ones stay invisible until a worker
		// marks them processed.
		chunks, err = p.store.ProcessedChunks(ctx)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to gather candidate chunks: %w", err)
	}

	if len(chunks) == 0 {
		p.countQuestion("no_content")
		return msgNoContent, false, nil
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	ranked := p.reranker.FindMostRelevant(ctx, question, contents, p.cfg.TopK)

	var relevant []ai.RankedChunk
	for _, r := range ranked {
		if r.Score >= p.cfg.RelevanceThreshold {
			relevant = append(relevant, r)
		}
	}
	if len(relevant) == 0 {
		p.countQuestion("not_relevant")
		return msgNotRelevant, false, nil
	}

	contextText := buildContext(relevant, p.cfg.MaxContextChars)
	answer := p.generator.Answer(ctx, question, contextText)

	if p.cache != nil {
		p.cache.Set(ctx, question, scope, answer)
	}
	p.countQuestion("generated")
	return answer, false, nil
}

// SearchChunks embeds the query and runs nearest-neighbor search over
// the vector index, optionally filtered to one document.
func (p *Processor) SearchChunks(ctx context.Context, query string, scope *primitive.ObjectID, topK int) ([]vectorstore.SearchResult, error) {
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	vectors, err := p.embedder.Embed(ctx, []string{query})
	if p.metrics != nil {
		p.metrics.RecordEmbeddingCall(p.embedder.Name(), err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Over-fetch when scoping so the filter still leaves topK hits.
	fetch := topK
	if scope != nil {
		fetch = topK * 5
	}
	results, err := p.index.Search(vectors[0], fetch)
	if err != nil {
		return nil, err
	}

	if scope == nil {
		return results, nil
	}
	scoped := results[:0]
	for _, r := range results {
		if r.Meta.DocumentID == scope.Hex() {
			scoped = append(scoped, r)
		}
	}
	if len(scoped) > topK {
		scoped = scoped[:topK]
	}
	return scoped, nil
}

func (p *Processor) countQuestion(path string) {
	if p.metrics != nil {
		p.metrics.RecordQuestion(path)
	}
}

// RemoveFromIndex drops a deleted document's vectors.
func (p *Processor) RemoveFromIndex(documentID primitive.ObjectID) error {
	return p.index.RemoveDocument(documentID.Hex())
}

// buildContext concatenates ranked chunk texts up to maxChars,
// marking truncation with an ellipsis rather than erroring.
func buildContext(ranked []ai.RankedChunk, maxChars int) string {
	var b strings.Builder
	for i, r := range ranked {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Content)
	}
	contextText := b.String()
	if maxChars > 0 && len(contextText) > maxChars {
		contextText = contextText[:maxChars] + "..."
	}
	return contextText
}
