package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"document-qa-backend/internal/config"

	"github.com/google/uuid"
)

// Formats the extractor can turn into text. Uploads outside this set
// are rejected at the boundary.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".xlsx": true,
}

// FileStorageManager stores uploaded documents on disk with opaque
// names, streamed through a temp file so a failed upload never leaves
// a partial document behind.
type FileStorageManager struct {
	uploadDir string
	tempDir   string
	maxSize   int64
}

func NewFileStorageManager(cfg *config.Config) *FileStorageManager {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}

	uploadDir := filepath.Join(baseDir, "documents")
	tempDir := filepath.Join(baseDir, "temp")

	os.MkdirAll(uploadDir, 0755)
	os.MkdirAll(tempDir, 0755)

	return &FileStorageManager{
		uploadDir: uploadDir,
		tempDir:   tempDir,
		maxSize:   cfg.MaxFileSize,
	}
}

// StoredFileInfo describes a persisted upload.
type StoredFileInfo struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
}

// Store validates and persists one uploaded file under the user's
// directory, returning its final path and content hash.
func (sm *FileStorageManager) Store(file multipart.File, header *multipart.FileHeader, userID string) (*StoredFileInfo, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !supportedExtensions[ext] {
		return nil, &ErrUnsupportedFormat{Extension: ext}
	}
	if sm.maxSize > 0 && header.Size > sm.maxSize {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", sm.maxSize)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	secureName := uuid.NewString() + ext

	userDir := filepath.Join(sm.uploadDir, userID)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}
	filePath := filepath.Join(userDir, secureName)

	tempPath := filepath.Join(sm.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := sha256.New()
	bytesWritten, err := io.Copy(io.MultiWriter(tempFile, hasher), file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if bytesWritten == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty")
	}

	if ext == ".pdf" {
		if err := validatePDFHeader(tempPath); err != nil {
			os.Remove(tempPath)
			return nil, err
		}
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &StoredFileInfo{
		Path:       filePath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		Size:       bytesWritten,
	}, nil
}

// Cleanup removes a stored file, ignoring missing paths.
func (sm *FileStorageManager) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to remove stored file %s: %v\n", path, err)
	}
}

func validatePDFHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, 4)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return fmt.Errorf("failed to read PDF header: %w", err)
	}
	if string(headerBytes) != "%PDF" {
		return fmt.Errorf("invalid PDF file: missing PDF header")
	}
	return nil
}
