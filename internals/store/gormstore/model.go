package gormstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentModel is the single table behind every collection.
type DocumentModel struct {
	Collection string         `gorm:"type:varchar(64);primaryKey;column:collection" json:"collection"`
	DocID      string         `gorm:"type:varchar(191);primaryKey;column:doc_id" json:"doc_id"`
	Data       datatypes.JSON `gorm:"not null;column:data" json:"data"`
	Version    int64          `gorm:"not null;default:1;column:version" json:"version"`
	CreatedAt  time.Time      `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;column:updated_at" json:"updated_at"`
	// Deleted rows stay as tombstones so a recreated document continues their version.
	DeletedAt gorm.DeletedAt `gorm:"index;column:deleted_at" json:"deleted_at,omitempty"`
}

func (DocumentModel) TableName() string { return "documents" }
