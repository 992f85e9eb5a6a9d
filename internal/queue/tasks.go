package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TaskDocumentProcess = "document:process"
)

type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
}

// NewDocumentProcessTask enqueues one document for the extract,
// chunk, embed, index pipeline.
func NewDocumentProcessTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentProcess,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// DocumentPipeline is what the worker invokes per task. The services
// processor satisfies it.
type DocumentPipeline interface {
	ProcessDocument(ctx context.Context, documentID primitive.ObjectID) error
}

// TaskProcessor dispatches queued tasks to the document pipeline.
type TaskProcessor struct {
	pipeline DocumentPipeline
}

func NewTaskProcessor(pipeline DocumentPipeline) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

func (p *TaskProcessor) HandleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	documentID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	log.Printf("Processing document: %s", payload.DocumentID)
	if err := p.pipeline.ProcessDocument(ctx, documentID); err != nil {
		log.Printf("Document processing failed: %s: %v", payload.DocumentID, err)
		return err // asynq retries up to MaxRetry
	}

	log.Printf("Document processed successfully: %s", payload.DocumentID)
	return nil
}
