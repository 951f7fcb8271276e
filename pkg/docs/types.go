package docs

import (
	"io"
	"time"
)

// Document is a versioned file container inside a project.
type Document struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Title          string    `json:"title"`
	CurrentVersion int       `json:"current_version"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Version is one immutable revision of a document's content.
type Version struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Version     int       `json:"version"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	StoragePath string    `json:"storage_path"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload carries the file being attached to a document. Size must be
// known up front so validation can reject oversized content before any
// storage call.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}
