package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents an uploaded document going through the
// extract -> chunk -> embed pipeline.
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title        string             `bson:"title" json:"title"`
	Filename     string             `bson:"filename" json:"filename"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	FilePath     string             `bson:"file_path" json:"-"`
	Size         int64              `bson:"size" json:"size"`
	Processed    bool               `bson:"processed" json:"processed"`
	Status       string             `bson:"status" json:"status"` // pending, processing, completed, failed
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	Summary      string             `bson:"summary,omitempty" json:"summary,omitempty"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// DocumentChunk is one bounded segment of a document's text. The pair
// (document_id, chunk_index) is unique; reading chunks in index order
// reproduces the segmented document.
type DocumentChunk struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID  primitive.ObjectID `bson:"document_id" json:"document_id"`
	ChunkIndex  int                `bson:"chunk_index" json:"chunk_index"`
	Content     string             `bson:"content,omitempty" json:"content"`
	Compressed  []byte             `bson:"compressed,omitempty" json:"-"`
	Compression string             `bson:"compression,omitempty" json:"-"`
	EmbeddingID string             `bson:"embedding_id,omitempty" json:"embedding_id,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// Document processing status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AskRequest is the body of an ask_question call.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// AskResponse mirrors the answer payload of the query boundary.
type AskResponse struct {
	Answer        string `json:"answer"`
	Question      string `json:"question"`
	DocumentTitle string `json:"document_title,omitempty"`
	Cached        bool   `json:"cached,omitempty"`
}

// UploadResponse is returned after a successful upload. Processing is
// asynchronous, so Processed is always false here.
type UploadResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	Processed bool   `json:"processed"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
