package models

import "fmt"

// RecordType identifies a syncable table in the local store
type RecordType string

const (
	RecordItem             RecordType = "Item"
	RecordItemBatch        RecordType = "ItemBatch"
	RecordName             RecordType = "Name"
	RecordNumberSequence   RecordType = "NumberSequence"
	RecordNumberToReuse    RecordType = "NumberToReuse"
	RecordRequisition      RecordType = "Requisition"
	RecordRequisitionItem  RecordType = "RequisitionItem"
	RecordStocktake        RecordType = "Stocktake"
	RecordStocktakeBatch   RecordType = "StocktakeBatch"
	RecordTransaction      RecordType = "Transaction"
	RecordTransactionBatch RecordType = "TransactionBatch"
)

// AllRecordTypes lists every syncable record type in integration order.
// Parents come before children so an inbound batch can be applied front to back
var AllRecordTypes = []RecordType{
	RecordItem,
	RecordName,
	RecordItemBatch,
	RecordNumberSequence,
	RecordNumberToReuse,
	RecordRequisition,
	RecordRequisitionItem,
	RecordTransaction,
	RecordTransactionBatch,
	RecordStocktake,
	RecordStocktakeBatch,
}

type recordMeta struct {
	table     string
	newRecord func() Record
	preloads  []string
}

// RecordRegistry is the whitelist of syncable record types
// Anything not listed here never reaches the wire in either direction
var RecordRegistry = map[RecordType]recordMeta{
	RecordItem:             {table: "item", newRecord: func() Record { return &Item{} }},
	RecordItemBatch:        {table: "item_line", newRecord: func() Record { return &ItemBatch{} }, preloads: []string{"Item", "Supplier"}},
	RecordName:             {table: "name", newRecord: func() Record { return &Name{} }},
	RecordNumberSequence:   {table: "number", newRecord: func() Record { return &NumberSequence{} }},
	RecordNumberToReuse:    {table: "number_reuse", newRecord: func() Record { return &NumberToReuse{} }},
	RecordRequisition:      {table: "requisition", newRecord: func() Record { return &Requisition{} }, preloads: []string{"OtherStoreName"}},
	RecordRequisitionItem:  {table: "requisition_line", newRecord: func() Record { return &RequisitionItem{} }, preloads: []string{"Requisition", "Item"}},
	RecordStocktake:        {table: "Stock_take", newRecord: func() Record { return &Stocktake{} }, preloads: []string{"Additions", "Reductions"}},
	RecordStocktakeBatch:   {table: "Stock_take_lines", newRecord: func() Record { return &StocktakeBatch{} }, preloads: []string{"Stocktake", "ItemBatch"}},
	RecordTransaction:      {table: "transact", newRecord: func() Record { return &Transaction{} }, preloads: []string{"OtherParty", "LinkedRequisition", "Items"}},
	RecordTransactionBatch: {table: "trans_line", newRecord: func() Record { return &TransactionBatch{} }, preloads: []string{"Transaction", "Item", "ItemBatch"}},
}

// LegacyTable returns the table name the central server uses for this record type
func (rt RecordType) LegacyTable() string {
	return RecordRegistry[rt].table
}

// IsSyncable reports whether records of this type travel to and from the server
func (rt RecordType) IsSyncable() bool {
	_, ok := RecordRegistry[rt]
	return ok
}

// New returns an empty record of this type, ready to be scanned into
func (rt RecordType) New() (Record, error) {
	meta, ok := RecordRegistry[rt]
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", rt)
	}
	return meta.newRecord(), nil
}

// Preloads lists the relations the translator walks for this record type
func (rt RecordType) Preloads() []string {
	return RecordRegistry[rt].preloads
}

// RecordTypeForTable resolves a legacy table name back to its record type
func RecordTypeForTable(table string) (RecordType, bool) {
	for rt, meta := range RecordRegistry {
		if meta.table == table {
			return rt, true
		}
	}
	return "", false
}

// Record is implemented by every persisted domain object
type Record interface {
	GetID() string
	RecordType() RecordType
}
