package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SentinelSerialNumber marks a record that arrived from another store and still
// needs a serial number from this store's sequence
const SentinelSerialNumber = "-1"

// Shared lifecycle statuses
const (
	StatusNew       = "new"
	StatusConfirmed = "confirmed"
	StatusFinalised = "finalised"
)

// Requisition types
const (
	RequisitionRequest  = "request"
	RequisitionResponse = "response"
)

// Transaction types
const (
	TransactionCustomerInvoice     = "customer_invoice"
	TransactionSupplierInvoice     = "supplier_invoice"
	TransactionCustomerCredit      = "customer_credit"
	TransactionSupplierCredit      = "supplier_credit"
	TransactionInventoryAdjustment = "inventory_adjustment"
	TransactionPrescription        = "prescription"
)

// Item is a stockable product
type Item struct {
	ID              string `gorm:"type:char(32);primaryKey"`
	Code            string `gorm:"index"`
	Name            string
	DefaultPackSize float64 `gorm:"default:1"`
}

func (Item) TableName() string       { return "items" }
func (*Item) RecordType() RecordType { return RecordItem }

func (i *Item) GetID() string {
	if i == nil {
		return ""
	}
	return i.ID
}

func (i *Item) GetName() string {
	if i == nil {
		return ""
	}
	return i.Name
}

// Name is a customer, supplier, store or patient
type Name struct {
	ID         string `gorm:"type:char(32);primaryKey"`
	Code       string
	Name       string
	Type       string
	IsCustomer bool
	IsSupplier bool
}

func (Name) TableName() string       { return "names" }
func (*Name) RecordType() RecordType { return RecordName }

func (n *Name) GetID() string {
	if n == nil {
		return ""
	}
	return n.ID
}

// ItemBatch is a stock line of an item in this store
type ItemBatch struct {
	ID            string `gorm:"type:char(32);primaryKey"`
	ItemID        string `gorm:"index"`
	Item          *Item  `gorm:"foreignKey:ItemID"`
	Batch         string
	PackSize      float64 `gorm:"default:1"`
	NumberOfPacks float64
	ExpiryDate    *time.Time
	CostPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	SellPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	SupplierID    string
	Supplier      *Name `gorm:"foreignKey:SupplierID"`
}

func (ItemBatch) TableName() string       { return "item_batches" }
func (*ItemBatch) RecordType() RecordType { return RecordItemBatch }

func (b *ItemBatch) GetID() string {
	if b == nil {
		return ""
	}
	return b.ID
}

// GetItemID follows the batch to its item, tolerating a missing batch
func (b *ItemBatch) GetItemID() string {
	if b == nil {
		return ""
	}
	if b.ItemID != "" {
		return b.ItemID
	}
	return b.Item.GetID()
}

// TotalQuantity is the number of single units held by the batch
func (b *ItemBatch) TotalQuantity() float64 {
	return b.PackSize * b.NumberOfPacks
}

// Requisition is an order between two stores.
// A request is raised by the ordering store; the supplying store holds the matching response
type Requisition struct {
	ID                 string `gorm:"type:char(32);primaryKey"`
	SerialNumber       string `gorm:"index"`
	RequesterReference string
	Status             string `gorm:"default:new"`
	Type               string `gorm:"default:request"`
	EntryDate          time.Time
	DaysToSupply       float64
	Comment            string
	OtherStoreNameID   string
	OtherStoreName     *Name `gorm:"foreignKey:OtherStoreNameID"`
	EnteredByID        string
	Items              []*RequisitionItem `gorm:"foreignKey:RequisitionID"`
}

func (Requisition) TableName() string       { return "requisitions" }
func (*Requisition) RecordType() RecordType { return RecordRequisition }

func (r *Requisition) GetID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *Requisition) IsResponse() bool  { return r.Type == RequisitionResponse }
func (r *Requisition) IsFinalised() bool { return r.Status == StatusFinalised }

// RequisitionItem is one line of a requisition
type RequisitionItem struct {
	ID               string       `gorm:"type:char(32);primaryKey"`
	RequisitionID    string       `gorm:"index"`
	Requisition      *Requisition `gorm:"foreignKey:RequisitionID"`
	ItemID           string
	Item             *Item `gorm:"foreignKey:ItemID"`
	StockOnHand      float64
	DailyUsage       float64
	ImprestQuantity  float64
	RequiredQuantity float64
	SuppliedQuantity float64
	Comment          string
	SortIndex        int
}

func (RequisitionItem) TableName() string       { return "requisition_items" }
func (*RequisitionItem) RecordType() RecordType { return RecordRequisitionItem }

func (ri *RequisitionItem) GetID() string {
	if ri == nil {
		return ""
	}
	return ri.ID
}

// Transaction is an invoice, credit, prescription or inventory adjustment
type Transaction struct {
	ID                  string `gorm:"type:char(32);primaryKey"`
	SerialNumber        string `gorm:"index"`
	Type                string `gorm:"index"`
	Status              string `gorm:"default:new"`
	Mode                string `gorm:"default:store"`
	EntryDate           time.Time
	ConfirmDate         *time.Time
	Comment             string
	TheirRef            string
	OtherPartyID        string
	OtherParty          *Name `gorm:"foreignKey:OtherPartyID"`
	EnteredByID         string
	LinkedRequisitionID string              `gorm:"index"`
	LinkedRequisition   *Requisition        `gorm:"foreignKey:LinkedRequisitionID"`
	Items               []*TransactionBatch `gorm:"foreignKey:TransactionID"`
}

func (Transaction) TableName() string       { return "transactions" }
func (*Transaction) RecordType() RecordType { return RecordTransaction }

func (t *Transaction) GetID() string {
	if t == nil {
		return ""
	}
	return t.ID
}

func (t *Transaction) IsFinalised() bool { return t.Status == StatusFinalised }

// IsOutgoing reports whether stock leaves the store when the transaction is finalised
func (t *Transaction) IsOutgoing() bool {
	switch t.Type {
	case TransactionCustomerInvoice, TransactionSupplierCredit, TransactionPrescription:
		return true
	}
	return false
}

// TransactionBatch is one stock line of a transaction
type TransactionBatch struct {
	ID            string       `gorm:"type:char(32);primaryKey"`
	TransactionID string       `gorm:"index"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID"`
	ItemID        string
	Item          *Item `gorm:"foreignKey:ItemID"`
	ItemBatchID   string
	ItemBatch     *ItemBatch `gorm:"foreignKey:ItemBatchID"`
	ItemName      string
	Batch         string
	ExpiryDate    *time.Time
	PackSize      float64 `gorm:"default:1"`
	NumberOfPacks float64
	CostPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	SellPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	Note          string
	SortIndex     int
}

func (TransactionBatch) TableName() string       { return "transaction_batches" }
func (*TransactionBatch) RecordType() RecordType { return RecordTransactionBatch }

func (tb *TransactionBatch) GetID() string {
	if tb == nil {
		return ""
	}
	return tb.ID
}

// TotalPrice is the sell value of the line
func (tb *TransactionBatch) TotalPrice() decimal.Decimal {
	return tb.SellPrice.Mul(decimal.NewFromFloat(tb.NumberOfPacks))
}

// Stocktake is a stock count session
type Stocktake struct {
	ID            string `gorm:"type:char(32);primaryKey"`
	Name          string
	SerialNumber  string
	Status        string `gorm:"default:new"`
	CreatedDate   time.Time
	StocktakeDate *time.Time
	FinalisedDate *time.Time
	Comment       string
	CreatedByID   string
	FinalisedByID string
	AdditionsID   string
	Additions     *Transaction `gorm:"foreignKey:AdditionsID"`
	ReductionsID  string
	Reductions    *Transaction `gorm:"foreignKey:ReductionsID"`
}

func (Stocktake) TableName() string       { return "stocktakes" }
func (*Stocktake) RecordType() RecordType { return RecordStocktake }

func (s *Stocktake) GetID() string {
	if s == nil {
		return ""
	}
	return s.ID
}

// StocktakeBatch is the counted quantity of one item batch within a stocktake
type StocktakeBatch struct {
	ID                    string     `gorm:"type:char(32);primaryKey"`
	StocktakeID           string     `gorm:"index"`
	Stocktake             *Stocktake `gorm:"foreignKey:StocktakeID"`
	ItemBatchID           string
	ItemBatch             *ItemBatch `gorm:"foreignKey:ItemBatchID"`
	Batch                 string
	ExpiryDate            *time.Time
	PackSize              float64 `gorm:"default:1"`
	SnapshotNumberOfPacks float64
	CountedNumberOfPacks  *float64
	CostPrice             decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	SellPrice             decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	SortIndex             int
}

func (StocktakeBatch) TableName() string       { return "stocktake_batches" }
func (*StocktakeBatch) RecordType() RecordType { return RecordStocktakeBatch }

func (sb *StocktakeBatch) GetID() string {
	if sb == nil {
		return ""
	}
	return sb.ID
}
