package models

import "strings"

// NumberSequence holds the highest serial number issued for one key in one store
type NumberSequence struct {
	ID                string `gorm:"type:char(32);primaryKey"`
	SequenceKey       string `gorm:"not null;uniqueIndex:ux_sequence_key_store"`
	StoreID           string `gorm:"not null;uniqueIndex:ux_sequence_key_store"`
	HighestNumberUsed int64  `gorm:"not null;default:0"`
}

func (NumberSequence) TableName() string       { return "number_sequences" }
func (*NumberSequence) RecordType() RecordType { return RecordNumberSequence }

func (s *NumberSequence) GetID() string {
	if s == nil {
		return ""
	}
	return s.ID
}

// NumberToReuse is a serial number released by a deleted record, waiting to be issued again
type NumberToReuse struct {
	ID          string `gorm:"type:char(32);primaryKey"`
	SequenceKey string `gorm:"not null;uniqueIndex:ux_reuse_key_store_number"`
	StoreID     string `gorm:"not null;uniqueIndex:ux_reuse_key_store_number"`
	Number      int64  `gorm:"not null;uniqueIndex:ux_reuse_key_store_number"`
}

func (NumberToReuse) TableName() string       { return "numbers_to_reuse" }
func (*NumberToReuse) RecordType() RecordType { return RecordNumberToReuse }

func (n *NumberToReuse) GetID() string {
	if n == nil {
		return ""
	}
	return n.ID
}

const legacySequenceSeparator = "_for_store_"

// LegacySequenceName is the name the central server uses for a store-scoped sequence
func LegacySequenceName(key, storeID string) string {
	return key + legacySequenceSeparator + storeID
}

// ParseLegacySequenceName splits a legacy sequence name into key and store
func ParseLegacySequenceName(name string) (key, storeID string, ok bool) {
	key, storeID, ok = strings.Cut(name, legacySequenceSeparator)
	if !ok || key == "" || storeID == "" {
		return "", "", false
	}
	return key, storeID, true
}
