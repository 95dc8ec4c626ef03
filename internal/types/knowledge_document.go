package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document processing states. Transitions only move
// pending -> processing -> {completed, failed}; both terminal states are final.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

type KnowledgeDocument struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Content       string         `gorm:"column:content;type:text" json:"content,omitempty"`
	Subject       string         `gorm:"column:subject;index" json:"subject"`
	Grade         string         `gorm:"column:grade;index" json:"grade"`
	FileName      string         `gorm:"column:file_name" json:"file_name"`
	FileType      string         `gorm:"column:file_type" json:"file_type"`
	FileSize      int64          `gorm:"column:file_size" json:"file_size"`
	FileMeta      datatypes.JSON `gorm:"column:file_meta;type:jsonb" json:"file_meta,omitempty"`
	Status        string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	EntityCount   int            `gorm:"column:entity_count;not null;default:0" json:"entity_count"`
	RelationCount int            `gorm:"column:relation_count;not null;default:0" json:"relation_count"`
	ErrorMsg      string         `gorm:"column:error_msg" json:"error_msg,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (KnowledgeDocument) TableName() string { return "knowledge_document" }

// IsTerminalStatus reports whether a document status admits no further
// transitions.
func IsTerminalStatus(status string) bool {
	return status == DocStatusCompleted || status == DocStatusFailed
}
