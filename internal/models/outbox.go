package models

import "time"

// ChangeType describes what happened to a record locally
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeRecord is a pending outbound change in the sync outbox.
// There is at most one per RecordID; its ID changes every time the record is re-enqueued
type ChangeRecord struct {
	ID         string     `gorm:"type:char(36);primaryKey"`
	RecordType RecordType `gorm:"type:varchar(32);not null"`
	RecordID   string     `gorm:"type:char(32);not null;uniqueIndex"`
	ChangeType ChangeType `gorm:"type:varchar(8);not null"`
	Timestamp  time.Time  `gorm:"not null"`
	Sequence   int64      `gorm:"not null;index"`
}

func (ChangeRecord) TableName() string { return "sync_outbox" }

// Setting is a durable key/value pair
type Setting struct {
	Key   string `gorm:"type:varchar(64);primaryKey"`
	Value string `gorm:"type:text"`
}

func (Setting) TableName() string { return "settings" }
