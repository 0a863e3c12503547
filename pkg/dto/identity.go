package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type IdentityResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Active           bool      `json:"active"`
	RecognitionCount int64     `json:"recognition_count"`
	LastRecognizedAt string    `json:"last_recognized_at,omitempty"`
	CreatedAt        string    `json:"created_at"`
}

type StatsResponse struct {
	Identities int64 `json:"identities"`
	Embeddings int64 `json:"embeddings"`
	IndexSize  int   `json:"index_size"`
}

type SearchRequest struct {
	Embedding []float32 `json:"embedding" binding:"required"`
	Limit     int       `json:"limit"`
}

type SearchResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type AuditEntryResponse struct {
	ID        int64           `json:"id"`
	Operation string          `json:"operation"`
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	Actor     string          `json:"actor"`
	Origin    string          `json:"origin"`
	OldData   json.RawMessage `json:"old_data,omitempty"`
	NewData   json.RawMessage `json:"new_data,omitempty"`
	CreatedAt string          `json:"created_at"`
}
