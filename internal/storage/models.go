package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is an ingested source file together with its chunk records.
// A document owns its chunks exclusively; deleting it cascades to them.
type Document struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Filepath     string    `json:"filepath"`
	Filesize     int64     `json:"filesize"`
	Content      string    `json:"-"`
	Indexed      bool      `json:"indexed"`
	UploadedAt   time.Time `json:"uploadedAt"`

	// ChunkCount is filled by list queries; Chunks only by GetDocument.
	ChunkCount int     `json:"chunks"`
	Chunks     []Chunk `json:"-"`
}

// Chunk is one persisted retrieval unit of a document.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Index      int    `json:"chunkIndex"`
	Content    string `json:"content"`
}

// Session groups an ordered conversation between a user and the assistant.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Messages []Message `json:"messages,omitempty"`
}

// Message is a single append-only conversation turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
