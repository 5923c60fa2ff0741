package models

import "fmt"

// Page is one ordered text block produced by extraction. For PDFs the number
// is the physical page; for HTML and plain text it is the section ordinal.
// Pages are transient and never persisted.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded span of page text, the unit written to the vector index.
// Start and End are rune offsets within the source page so that
// Text == page.Text[Start:End] always holds.
type Chunk struct {
	Index      int    `json:"index"` // ordinal within the document, from 0
	Page       int    `json:"page"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
}

// VectorID is the deterministic index identifier for the chunk. Re-ingesting
// a document produces the same ids, so upserts overwrite instead of
// duplicating.
func (c Chunk) VectorID() string {
	return fmt.Sprintf("%s:%d", c.DocumentID, c.Index)
}
