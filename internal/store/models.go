package store

import "time"

// DocumentStatus reflects whether text extraction produced analyzable content.
type DocumentStatus string

const (
	StatusAnalyzed     DocumentStatus = "analyzed"
	StatusUnanalyzable DocumentStatus = "unanalyzable"
)

type Document struct {
	ID          string         `json:"id"` // UUID
	OwnerID     string         `json:"owner_id"`
	Filename    string         `json:"filename"`
	Fingerprint string         `json:"fingerprint"` // SHA-256 of raw bytes
	Size        int64          `json:"size"`
	MimeType    string         `json:"mime_type"`
	Status      DocumentStatus `json:"status"`
	Warning     bool           `json:"warning"` // extraction was partial/best-effort
	// ExtractedText can be large; it is stored in its own column and only
	// loaded on demand via DocumentText.
	ExtractedText string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type Chunk struct {
	// ID is the autoincrement rowid; it doubles as the insertion-order
	// tiebreak for equal similarity scores.
	ID          int64     `json:"id"`
	DocumentID  string    `json:"document_id"`
	Seq         int       `json:"seq"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"` // stored as JSON in the DB
}
