package models

import "time"

// Source kinds for a Document.
const (
	SourceUpload = "upload"
	SourceScrape = "scrape"
)

// Document processing status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document represents an uploaded file or scraped page owned by a tenant.
// The record outlives individual ingestion attempts; deleting it must cascade
// to the vector index and raw object storage.
type Document struct {
	ID         string    `bson:"_id" json:"id"`
	OwnerID    string    `bson:"owner_id" json:"owner_id"`
	SourceKind string    `bson:"source_kind" json:"source_kind"` // upload or scrape
	SourceURL  string    `bson:"source_url,omitempty" json:"source_url,omitempty"`
	FileType   string    `bson:"file_type,omitempty" json:"file_type,omitempty"` // pdf, html, txt, xlsx
	Title      string    `bson:"title" json:"title"`
	Status     string    `bson:"status" json:"status"`
	ChunkCount int       `bson:"chunk_count" json:"chunk_count"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// DocumentSummary is the listing shape exposed to callers.
type DocumentSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary projects a Document onto its caller-visible listing shape.
func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:         d.ID,
		Title:      d.Title,
		Status:     d.Status,
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}
