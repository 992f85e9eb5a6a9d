package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-qa-backend/internal/ai"
	"document-qa-backend/internal/config"
	"document-qa-backend/internal/telemetry"
	"document-qa-backend/internal/vectorstore"
	"document-qa-backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeStore struct {
	docs      map[primitive.ObjectID]*models.Document
	chunks    map[primitive.ObjectID][]models.DocumentChunk
	statuses  []string
	summaries map[primitive.ObjectID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[primitive.ObjectID]*models.Document),
		chunks:    make(map[primitive.ObjectID][]models.DocumentChunk),
		summaries: make(map[primitive.ObjectID]string),
	}
}

func (s *fakeStore) GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStore) SetStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error {
	s.statuses = append(s.statuses, status)
	if doc, ok := s.docs[id]; ok {
		doc.Status = status
		doc.ErrorMessage = errorMessage
	}
	return nil
}

func (s *fakeStore) SetProcessed(ctx context.Context, id primitive.ObjectID, processed bool, chunkCount int) error {
	if doc, ok := s.docs[id]; ok {
		doc.Processed = processed
		doc.ChunkCount = chunkCount
	}
	return nil
}

func (s *fakeStore) SetSummary(ctx context.Context, id primitive.ObjectID, summary string) error {
	s.summaries[id] = summary
	return nil
}

func (s *fakeStore) ReplaceChunks(ctx context.Context, documentID primitive.ObjectID, chunks []models.DocumentChunk) error {
	s.chunks[documentID] = chunks
	return nil
}

func (s *fakeStore) ChunksByDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.DocumentChunk, error) {
	return s.chunks[documentID], nil
}

func (s *fakeStore) ProcessedChunks(ctx context.Context) ([]models.DocumentChunk, error) {
	var all []models.DocumentChunk
	for id, chunks := range s.chunks {
		if doc, ok := s.docs[id]; !ok || !doc.Processed {
			continue
		}
		all = append(all, chunks...)
	}
	return all, nil
}

type fakeIndex struct {
	added   int
	removed []string
	failAdd error
}

func (f *fakeIndex) Add(vectors [][]float32, metas []vectorstore.ChunkMeta) error {
	if f.failAdd != nil {
		return f.failAdd
	}
	f.added += len(vectors)
	return nil
}

func (f *fakeIndex) RemoveDocument(documentID string) error {
	f.removed = append(f.removed, documentID)
	return nil
}

func (f *fakeIndex) Search(query []float32, topK int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

type recordingGenerator struct {
	lastQuestion string
	lastContext  string
	reply        string
}

func (g *recordingGenerator) Name() string { return "recording" }

func (g *recordingGenerator) Answer(ctx context.Context, question, contextText string) string {
	g.lastQuestion = question
	g.lastContext = contextText
	return g.reply
}

func testConfig() *config.Config {
	return &config.Config{
		MaxChunkSize:       800,
		MinChunkSize:       10,
		TopK:               3,
		RelevanceThreshold: 0.3,
		MaxContextChars:    2000,
		VectorDim:          32,
	}
}

func newTestProcessor(store *fakeStore, index *fakeIndex, gen ai.Generator) *Processor {
	return NewProcessor(ProcessorOptions{
		Config:    testConfig(),
		Store:     store,
		Index:     index,
		Embedder:  ai.NewLocalEmbedder(32),
		Reranker:  ai.NewReranker(nil),
		Generator: gen,
	})
}

func writeTestDoc(t *testing.T, store *fakeStore, content string) primitive.ObjectID {
	t.Helper()

	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	id := primitive.NewObjectID()
	store.docs[id] = &models.Document{
		ID:       id,
		Title:    "ML doc",
		FilePath: path,
		Status:   models.StatusPending,
	}
	return id
}

func TestProcessDocumentHappyPath(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{}
	p := newTestProcessor(store, index, &recordingGenerator{reply: "ok"})

	id := writeTestDoc(t, store, "Machine learning is great. Python helps ML a lot.")

	if err := p.ProcessDocument(context.Background(), id); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	doc := store.docs[id]
	if !doc.Processed {
		t.Error("document not marked processed")
	}
	if doc.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", doc.ChunkCount)
	}
	if index.added != 1 {
		t.Errorf("expected 1 vector indexed, got %d", index.added)
	}

	chunks := store.chunks[id]
	if len(chunks) != 1 || chunks[0].ChunkIndex != 0 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if !strings.Contains(chunks[0].Content, "Machine learning is great") {
		t.Errorf("chunk lost content: %q", chunks[0].Content)
	}
	if want := id.Hex() + ":0"; chunks[0].EmbeddingID != want {
		t.Errorf("EmbeddingID = %q, want %q", chunks[0].EmbeddingID, want)
	}
}

func TestProcessDocumentUnsupportedFormat(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{}
	p := newTestProcessor(store, index, &recordingGenerator{})

	path := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(path, []byte("not a document"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	id := primitive.NewObjectID()
	store.docs[id] = &models.Document{ID: id, Title: "img", FilePath: path}

	err := p.ProcessDocument(context.Background(), id)
	if err == nil {
		t.Fatal("expected processing to fail for unsupported format")
	}

	doc := store.docs[id]
	if doc.Processed {
		t.Error("failed document must not be processed")
	}
	if doc.Status != models.StatusFailed {
		t.Errorf("expected failed status, got %q", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Error("failure must record an error message")
	}
}

func TestProcessDocumentIndexFailureResetsProcessed(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{failAdd: &vectorstore.DimensionMismatchError{Want: 32, Got: 4}}
	p := newTestProcessor(store, index, &recordingGenerator{})

	id := writeTestDoc(t, store, "Machine learning is great. Python helps ML a lot.")

	if err := p.ProcessDocument(context.Background(), id); err == nil {
		t.Fatal("expected index failure to propagate")
	}
	if store.docs[id].Processed {
		t.Error("processed flag must reset on failure")
	}
}

func TestAnswerQuestionHappyPath(t *testing.T) {
	store := newFakeStore()
	gen := &recordingGenerator{reply: "Machine learning is a field of AI."}
	p := newTestProcessor(store, &fakeIndex{}, gen)

	id := writeTestDoc(t, store, "Machine learning is great. Python helps ML a lot.")
	if err := p.ProcessDocument(context.Background(), id); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	answer, cached, err := p.AnswerQuestion(context.Background(), "What is machine learning?", &id)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if cached {
		t.Error("no cache configured, answer must not be cached")
	}
	if answer != gen.reply {
		t.Fatalf("expected generator answer, got %q", answer)
	}
	if !strings.Contains(gen.lastContext, "Machine learning") {
		t.Errorf("generator context missing retrieved chunk: %q", gen.lastContext)
	}
	if gen.lastQuestion != "What is machine learning?" {
		t.Errorf("generator got question %q", gen.lastQuestion)
	}
}

func TestAnswerQuestionNoChunks(t *testing.T) {
	store := newFakeStore()
	gen := &recordingGenerator{reply: "should not be called"}
	p := newTestProcessor(store, &fakeIndex{}, gen)

	answer, _, err := p.AnswerQuestion(context.Background(), "Anything?", nil)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if answer != msgNoContent {
		t.Fatalf("expected no-content message, got %q", answer)
	}
	if gen.lastQuestion != "" {
		t.Error("generator must not be invoked without chunks")
	}
}

func TestAnswerQuestionNothingRelevant(t *testing.T) {
	store := newFakeStore()
	gen := &recordingGenerator{reply: "should not be called"}
	p := newTestProcessor(store, &fakeIndex{}, gen)

	id := primitive.NewObjectID()
	store.chunks[id] = []models.DocumentChunk{
		{DocumentID: id, ChunkIndex: 0, Content: "The cafeteria lunch menu changes weekly without notice."},
	}

	answer, _, err := p.AnswerQuestion(context.Background(), "Explain quantum entanglement theory?", &id)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if answer != msgNotRelevant {
		t.Fatalf("expected not-relevant message, got %q", answer)
	}
	if gen.lastQuestion != "" {
		t.Error("generator must not be invoked when nothing passes the threshold")
	}
}

func TestAnswerQuestionIgnoresUnprocessedDocuments(t *testing.T) {
	store := newFakeStore()
	gen := &recordingGenerator{reply: "should not be called"}
	p := newTestProcessor(store, &fakeIndex{}, gen)

	id := primitive.NewObjectID()
	store.docs[id] = &models.Document{ID: id, Title: "in flight", Status: models.StatusProcessing}
	store.chunks[id] = []models.DocumentChunk{
		{DocumentID: id, ChunkIndex: 0, Content: "Machine learning models train on large datasets every day."},
	}

	answer, _, err := p.AnswerQuestion(context.Background(), "What do machine learning models train on?", nil)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if answer != msgNoContent {
		t.Fatalf("in-flight document leaked into the corpus: %q", answer)
	}
	if gen.lastContext != "" {
		t.Fatalf("unprocessed document's chunk reached the generator: %q", gen.lastContext)
	}

	// Completion makes the same chunk visible.
	store.docs[id].Processed = true
	store.docs[id].Status = models.StatusCompleted

	answer, _, err = p.AnswerQuestion(context.Background(), "What do machine learning models train on?", nil)
	if err != nil {
		t.Fatalf("AnswerQuestion after completion: %v", err)
	}
	if answer != gen.reply {
		t.Fatalf("processed document not answered from: %q", answer)
	}
	if !strings.Contains(gen.lastContext, "large datasets") {
		t.Errorf("generator context missing processed chunk: %q", gen.lastContext)
	}
}

func TestAnswerQuestionContextTruncated(t *testing.T) {
	store := newFakeStore()
	gen := &recordingGenerator{reply: "ok"}

	p := NewProcessor(ProcessorOptions{
		Config: &config.Config{
			MaxChunkSize:       800,
			MinChunkSize:       10,
			TopK:               3,
			RelevanceThreshold: 0.1,
			MaxContextChars:    50,
			VectorDim:          32,
		},
		Store:     store,
		Index:     &fakeIndex{},
		Embedder:  ai.NewLocalEmbedder(32),
		Reranker:  ai.NewReranker(nil),
		Generator: gen,
	})

	id := primitive.NewObjectID()
	store.chunks[id] = []models.DocumentChunk{
		{DocumentID: id, ChunkIndex: 0, Content: strings.Repeat("machine learning models train on data. ", 10)},
	}

	if _, _, err := p.AnswerQuestion(context.Background(), "What do machine learning models do?", &id); err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if len(gen.lastContext) != 53 {
		t.Fatalf("expected context capped at 50 chars plus ellipsis, got %d", len(gen.lastContext))
	}
	if !strings.HasSuffix(gen.lastContext, "...") {
		t.Errorf("truncated context missing ellipsis: %q", gen.lastContext)
	}
}

func TestProcessDocumentRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}

	store := newFakeStore()
	gen := &recordingGenerator{reply: "ok"}
	p := NewProcessor(ProcessorOptions{
		Config:    testConfig(),
		Store:     store,
		Index:     &fakeIndex{},
		Embedder:  ai.NewLocalEmbedder(32),
		Reranker:  ai.NewReranker(nil),
		Generator: gen,
		Metrics:   metrics,
	})

	id := writeTestDoc(t, store, "Machine learning is great. Python helps ML a lot.")
	if err := p.ProcessDocument(context.Background(), id); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if _, _, err := p.AnswerQuestion(context.Background(), "What is machine learning?", &id); err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	recorded := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			recorded[m.Name] = true
		}
	}
	for _, name := range []string{
		"document.processing.duration",
		"embeddings.calls.total",
		"questions.answered.total",
	} {
		if !recorded[name] {
			t.Errorf("pipeline did not record %q", name)
		}
	}
}

func TestBuildContextJoinsInRankOrder(t *testing.T) {
	ranked := []ai.RankedChunk{
		{Content: "first", Score: 0.9},
		{Content: "second", Score: 0.5},
	}
	got := buildContext(ranked, 2000)
	if got != "first\n\nsecond" {
		t.Fatalf("unexpected context: %q", got)
	}
}
