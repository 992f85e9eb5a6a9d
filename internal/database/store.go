package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"document-qa-backend/models"
	"document-qa-backend/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the persistence layer for documents and their
// chunks. Chunk text is compressed at rest and decompressed on read;
// callers only ever see plain content.
type DocumentStore struct {
	documents *mongo.Collection
	chunks    *mongo.Collection
}

func NewDocumentStore(db *mongo.Database) *DocumentStore {
	return &DocumentStore{
		documents: db.Collection("documents"),
		chunks:    db.Collection("document_chunks"),
	}
}

// InsertDocument stores a new document record and returns it with its
// generated id.
func (s *DocumentStore) InsertDocument(ctx context.Context, doc *models.Document) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	result, err := s.documents.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// GetDocument fetches one document by id.
func (s *DocumentStore) GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns a user's documents, newest first.
func (s *DocumentStore) ListDocuments(ctx context.Context, userID primitive.ObjectID) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cursor, err := s.documents.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and all of its chunks.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	result, err := s.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus updates the processing status and clears or records the
// failure message.
func (s *DocumentStore) SetStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error {
	update := bson.M{
		"status":        status,
		"error_message": errorMessage,
	}
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// SetProcessed flips the processed flag. Successful processing also
// records completion time and chunk count; failure resets those.
func (s *DocumentStore) SetProcessed(ctx context.Context, id primitive.ObjectID, processed bool, chunkCount int) error {
	update := bson.M{
		"processed":   processed,
		"chunk_count": chunkCount,
	}
	if processed {
		now := time.Now()
		update["processed_at"] = now
		update["status"] = models.StatusCompleted
	}
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update processed flag: %w", err)
	}
	return nil
}

// SetSummary attaches a generated summary. Best-effort metadata, so
// callers may ignore the error.
func (s *DocumentStore) SetSummary(ctx context.Context, id primitive.ObjectID, summary string) error {
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"summary": summary}})
	return err
}

// ReplaceChunks atomically swaps a document's chunk set: old chunks
// are removed, the new ones inserted with compressed content. Called
// on every (re)processing run so the unique (document_id, chunk_index)
// index never conflicts.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, documentID primitive.ObjectID, chunks []models.DocumentChunk) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		chunk := chunks[i]
		chunk.DocumentID = documentID
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}

		compressed, algorithm, err := utils.CompressText(chunk.Content)
		if err == nil && algorithm != utils.CompressionNone {
			chunk.Compressed = compressed
			chunk.Compression = string(algorithm)
			chunk.Content = ""
		}
		docs[i] = chunk
	}

	if _, err := s.chunks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// ChunksByDocument returns a document's chunks in index order with
// content decompressed.
func (s *DocumentStore) ChunksByDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.DocumentChunk, error) {
	return s.findChunks(ctx, bson.M{"document_id": documentID})
}

// ProcessedChunks returns the chunks of every fully processed
// document, ordered by document then chunk index. Chunks are persisted
// mid-pipeline, before embedding can still fail, so in-flight and
// failed documents are excluded here rather than leaking into
// corpus-wide retrieval.
func (s *DocumentStore) ProcessedChunks(ctx context.Context) ([]models.DocumentChunk, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := s.documents.Find(ctx, bson.M{"processed": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode processed documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return s.findChunks(ctx, bson.M{"document_id": bson.M{"$in": ids}})
}

func (s *DocumentStore) findChunks(ctx context.Context, filter bson.M) ([]models.DocumentChunk, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "document_id", Value: 1},
		{Key: "chunk_index", Value: 1},
	})
	cursor, err := s.chunks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.DocumentChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}

	for i := range chunks {
		if chunks[i].Content == "" && len(chunks[i].Compressed) > 0 {
			content, err := utils.DecompressText(chunks[i].Compressed, utils.CompressionAlgorithm(chunks[i].Compression))
			if err != nil {
				return nil, fmt.Errorf("failed to decompress chunk %d: %w", chunks[i].ChunkIndex, err)
			}
			chunks[i].Content = content
			chunks[i].Compressed = nil
		}
	}
	return chunks, nil
}

// MarkStuckDocuments resets documents that have sat in processing or
// pending longer than maxAge back to pending so the sweeper can
// re-enqueue them. Aged pending documents mean the original enqueue
// was lost; re-submission is idempotent, so picking them up again is
// safe. Returns the affected document ids.
func (s *DocumentStore) MarkStuckDocuments(ctx context.Context, maxAge time.Duration) ([]primitive.ObjectID, error) {
	cursor, err := s.documents.Find(ctx, stuckFilter(time.Now().Add(-maxAge)))
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stuck documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	_, err = s.documents.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": models.StatusPending, "processed": false}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset stuck documents: %w", err)
	}
	return ids, nil
}

func stuckFilter(cutoff time.Time) bson.M {
	return bson.M{
		"status":      bson.M{"$in": []string{models.StatusProcessing, models.StatusPending}},
		"processed":   false,
		"uploaded_at": bson.M{"$lt": cutoff},
	}
}
