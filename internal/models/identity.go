package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an enrolled person. An identity is never committed without at
// least one embedding; enrollment creates both in one transaction.
type Identity struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	NameHash         string     `json:"-" db:"name_hash"`
	Active           bool       `json:"active" db:"active"`
	RecognitionCount int64      `json:"recognition_count" db:"recognition_count"`
	LastRecognizedAt *time.Time `json:"last_recognized_at,omitempty" db:"last_recognized_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// FaceEmbedding is one enrolled face sample. Samples are append-only and
// destroyed only by cascading delete of the owning identity.
type FaceEmbedding struct {
	ID            uuid.UUID `json:"id" db:"id"`
	IdentityID    uuid.UUID `json:"identity_id" db:"identity_id"`
	Embedding     []float32 `json:"-" db:"embedding"`
	EmbeddingSize int       `json:"embedding_size" db:"embedding_size"`
	Quality       float32   `json:"quality" db:"quality"`
	IsPrimary     bool      `json:"is_primary" db:"is_primary"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// LabeledEmbedding pairs an identity name with one of its stored vectors.
// The full corpus of these builds the in-memory matching index.
type LabeledEmbedding struct {
	Name   string
	Vector []float32
}

// StoreStats summarizes the persisted corpus.
type StoreStats struct {
	IdentityCount  int `json:"identity_count"`
	EmbeddingCount int `json:"embedding_count"`
}
