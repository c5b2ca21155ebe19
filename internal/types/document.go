package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceTypePDF         = "pdf"
	SourceTypeExcel       = "excel"
	SourceTypeCSV         = "csv"
	SourceTypeSpreadsheet = "spreadsheet"
)

// DocumentCollection is the persisted unit for one (course_id, source_id)
// pair. Re-indexing a source replaces the collection and its chunks in a
// single transaction; a collection is never partially written.
type DocumentCollection struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID   string         `gorm:"not null;index;uniqueIndex:idx_collection_course_source" json:"course_id"`
	SourceID   string         `gorm:"not null;uniqueIndex:idx_collection_course_source" json:"source_id"`
	SourceType string         `gorm:"not null" json:"source_type"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (DocumentCollection) TableName() string {
	return "document_collection"
}

// CollectionMetadata is the JSON payload stored on DocumentCollection.Metadata.
type CollectionMetadata struct {
	ChunkCount      int `json:"chunk_count"`
	TotalTextLength int `json:"total_text_length"`
}

// DocumentChunk is immutable once written; produced only by the indexer.
type DocumentChunk struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"collection_id"`
	CourseID     string         `gorm:"not null;index" json:"course_id"`
	SourceID     string         `gorm:"not null" json:"source_id"`
	SourceType   string         `gorm:"not null" json:"source_type"`
	Ordinal      int            `gorm:"not null" json:"ordinal"`
	Text         string         `gorm:"not null" json:"text"`
	Embedding    datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunk"
}
