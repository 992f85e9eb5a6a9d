package routes

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"document-qa-backend/internal/config"
	"document-qa-backend/internal/database"
	"document-qa-backend/internal/logger"
	"document-qa-backend/internal/queue"
	"document-qa-backend/middleware"
	"document-qa-backend/models"
	"document-qa-backend/services"
	"document-qa-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentRoutes carries the collaborators the document endpoints
// need.
type DocumentRoutes struct {
	cfg       *config.Config
	store     *database.DocumentStore
	storage   *services.FileStorageManager
	processor *services.Processor
	queue     *asynq.Client
	cache     *services.AnswerCache
}

func SetupDocumentRoutes(
	router *gin.Engine,
	cfg *config.Config,
	store *database.DocumentStore,
	processor *services.Processor,
	queueClient *asynq.Client,
	cache *services.AnswerCache,
	authMiddleware *middleware.AuthMiddleware,
) {
	dr := &DocumentRoutes{
		cfg:       cfg,
		store:     store,
		storage:   services.NewFileStorageManager(cfg),
		processor: processor,
		queue:     queueClient,
		cache:     cache,
	}

	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())

	api.POST("/documents", dr.upload)
	api.GET("/documents", dr.list)
	api.GET("/documents/:id", dr.get)
	api.DELETE("/documents/:id", dr.remove)
	api.POST("/documents/:id/ask", dr.askDocument)
	api.GET("/documents/:id/search", dr.search)
	api.POST("/ask", dr.askAll)
}

// upload accepts a multipart document, stores it and enqueues
// processing. Returns 202: chunking and embedding happen in the
// worker.
func (dr *DocumentRoutes) upload(c *gin.Context) {
	userID, ok := dr.requireUser(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "A file is required", gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	info, err := dr.storage.Store(file, header, userID.Hex())
	if err != nil {
		var unsupported *services.ErrUnsupportedFormat
		if errors.As(err, &unsupported) {
			utils.RespondWithBadRequest(c, "Unsupported document format", gin.H{"extension": unsupported.Extension})
			return
		}
		utils.RespondWithBadRequest(c, "Failed to store uploaded file", gin.H{"error": err.Error()})
		return
	}

	doc := &models.Document{
		UserID:       userID,
		Title:        title,
		Filename:     info.SecureName,
		OriginalName: header.Filename,
		FilePath:     info.Path,
		Size:         info.Size,
		Status:       models.StatusPending,
	}
	if err := dr.store.InsertDocument(c.Request.Context(), doc); err != nil {
		dr.storage.Cleanup(info.Path)
		utils.RespondWithInternalError(c, "Failed to create document", nil)
		return
	}

	task, err := queue.NewDocumentProcessTask(doc.ID.Hex())
	if err == nil {
		_, err = dr.queue.Enqueue(task)
	}
	if err != nil {
		logger.Error("Failed to enqueue document processing", "document_id", doc.ID.Hex(), "error", err)
		utils.RespondWithInternalError(c, "Failed to schedule document processing", nil)
		return
	}

	c.JSON(http.StatusAccepted, models.UploadResponse{
		ID:        doc.ID.Hex(),
		Title:     doc.Title,
		Filename:  doc.OriginalName,
		Processed: false,
		Status:    doc.Status,
		Message:   "Document uploaded. Processing has started.",
	})
}

func (dr *DocumentRoutes) list(c *gin.Context) {
	userID, ok := dr.requireUser(c)
	if !ok {
		return
	}

	docs, err := dr.store.ListDocuments(c.Request.Context(), userID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list documents", nil)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (dr *DocumentRoutes) get(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (dr *DocumentRoutes) remove(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := dr.store.DeleteDocument(ctx, doc.ID); err != nil {
		utils.RespondWithInternalError(c, "Failed to delete document", nil)
		return
	}
	if err := dr.processor.RemoveFromIndex(doc.ID); err != nil {
		logger.Error("Failed to remove document from index", "document_id", doc.ID.Hex(), "error", err)
	}
	if dr.cache != nil {
		dr.cache.InvalidateDocument(ctx, doc.ID)
	}
	dr.storage.Cleanup(doc.FilePath)

	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

// askDocument answers a question scoped to one processed document.
func (dr *DocumentRoutes) askDocument(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}

	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Question is required", nil)
		return
	}

	if !doc.Processed {
		utils.RespondWithBadRequest(c, "Document is still being processed", gin.H{"status": doc.Status})
		return
	}

	answer, cached, err := dr.processor.AnswerQuestion(c.Request.Context(), req.Question, &doc.ID)
	if err != nil {
		logger.Error("Failed to answer question", "document_id", doc.ID.Hex(), "error", err)
		utils.RespondWithInternalError(c, "An error occurred while processing your question", nil)
		return
	}

	c.JSON(http.StatusOK, models.AskResponse{
		Answer:        answer,
		Question:      req.Question,
		DocumentTitle: doc.Title,
		Cached:        cached,
	})
}

// askAll answers a question over every processed document.
func (dr *DocumentRoutes) askAll(c *gin.Context) {
	if _, ok := dr.requireUser(c); !ok {
		return
	}

	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Question is required", nil)
		return
	}

	answer, cached, err := dr.processor.AnswerQuestion(c.Request.Context(), req.Question, nil)
	if err != nil {
		logger.Error("Failed to answer question", "error", err)
		utils.RespondWithInternalError(c, "An error occurred while processing your question", nil)
		return
	}

	c.JSON(http.StatusOK, models.AskResponse{
		Answer:   answer,
		Question: req.Question,
		Cached:   cached,
	})
}

// search runs vector similarity search over a document's chunks.
func (dr *DocumentRoutes) search(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		utils.RespondWithBadRequest(c, "Query parameter q is required", nil)
		return
	}

	topK := dr.cfg.TopK
	if raw := c.Query("top_k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 50 {
			topK = parsed
		}
	}

	results, err := dr.processor.SearchChunks(c.Request.Context(), query, &doc.ID, topK)
	if err != nil {
		logger.Error("Chunk search failed", "document_id", doc.ID.Hex(), "error", err)
		utils.RespondWithInternalError(c, "Search failed", nil)
		return
	}

	type searchHit struct {
		Content    string  `json:"content"`
		Score      float64 `json:"score"`
		ChunkIndex int     `json:"chunk_index"`
	}
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{Content: r.Meta.Content, Score: r.Score, ChunkIndex: r.Meta.ChunkIndex}
	}

	c.JSON(http.StatusOK, gin.H{"query": query, "results": hits})
}

func (dr *DocumentRoutes) requireUser(c *gin.Context) (primitive.ObjectID, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		utils.RespondWithUnauthorized(c, "User ID required")
		return primitive.NilObjectID, false
	}
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid user ID", nil)
		return primitive.NilObjectID, false
	}
	return objID, true
}

// ownedDocument loads the :id document and verifies the caller owns
// it. Foreign documents read as 404 to avoid leaking their existence.
func (dr *DocumentRoutes) ownedDocument(c *gin.Context) (*models.Document, bool) {
	userID, ok := dr.requireUser(c)
	if !ok {
		return nil, false
	}

	docID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document ID", nil)
		return nil, false
	}

	doc, err := dr.store.GetDocument(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.RespondWithNotFound(c, "Document not found")
		} else {
			utils.RespondWithInternalError(c, "Failed to load document", nil)
		}
		return nil, false
	}
	if doc.UserID != userID {
		utils.RespondWithNotFound(c, "Document not found")
		return nil, false
	}
	return doc, true
}
