package models

import (
	"time"

	"gorm.io/datatypes"
)

// DraftEntry is one key-value row backing the SQL draft store.
type DraftEntry struct {
	Key       string         `gorm:"column:storage_key;primaryKey;size:191"`
	Value     datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name so both postgres and sqlite deployments share it.
func (DraftEntry) TableName() string {
	return "draft_entries"
}
