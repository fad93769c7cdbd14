package mapper

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

const (
	wireDateLayout = "2006-01-02"
	wireDateSuffix = "T00:00:00"
	wireTimeLayout = "15:04:05"
)

// Wire is a record in the central server's field names
type Wire map[string]any

// Translator maps local records to the legacy wire format for one store.
// It holds no other state; the same input always yields the same output
type Translator struct {
	StoreID string
}

type translateFunc func(t Translator, rec models.Record) (Wire, error)

var translators = map[models.RecordType]translateFunc{
	models.RecordItem:             translateItem,
	models.RecordItemBatch:        translateItemBatch,
	models.RecordName:             translateName,
	models.RecordNumberSequence:   translateNumberSequence,
	models.RecordNumberToReuse:    translateNumberToReuse,
	models.RecordRequisition:      translateRequisition,
	models.RecordRequisitionItem:  translateRequisitionItem,
	models.RecordStocktake:        translateStocktake,
	models.RecordStocktakeBatch:   translateStocktakeBatch,
	models.RecordTransaction:      translateTransaction,
	models.RecordTransactionBatch: translateTransactionBatch,
}

// Translate converts rec to its wire shape. Missing relations become null;
// anything else that goes wrong comes back as a *TranslationError
func (t Translator) Translate(rt models.RecordType, rec models.Record) (w Wire, err error) {
	var id string
	if rec != nil {
		id = rec.GetID()
	}

	defer func() {
		if r := recover(); r != nil {
			w, err = nil, t.wrap("translate", rt, id, fmt.Errorf("panic: %v", r))
		}
	}()

	fn, ok := translators[rt]
	if !ok {
		return nil, t.wrap("translate", rt, id, ErrUnsupportedRecordType)
	}

	w, err = fn(t, rec)
	if err != nil {
		return nil, t.wrap("translate", rt, id, err)
	}
	return w, nil
}

// Envelope wraps a translated record for delivery. Deletes only carry the id
func (t Translator) Envelope(c models.ChangeRecord, data Wire) (models.SyncRecord, error) {
	syncType, err := ChangeTypeCode(c.ChangeType)
	if err != nil {
		return models.SyncRecord{}, t.wrap("translate", c.RecordType, c.RecordID, err)
	}
	if c.ChangeType == models.ChangeDelete {
		data = Wire{"ID": c.RecordID}
	}
	return models.SyncRecord{
		SyncID:     c.ID,
		RecordType: c.RecordType.LegacyTable(),
		RecordID:   c.RecordID,
		SyncType:   syncType,
		StoreID:    t.StoreID,
		Data:       data,
	}, nil
}

func (t Translator) wrap(op string, rt models.RecordType, id string, err error) error {
	return &TranslationError{Op: op, RecordType: rt, RecordID: id, StoreID: t.StoreID, Err: err}
}

func as[T any](rec models.Record) (*T, error) {
	v, ok := any(rec).(*T)
	if !ok || v == nil {
		var zero T
		return nil, fmt.Errorf("expected *%T, got %T", zero, rec)
	}
	return v, nil
}

// ref turns an empty relation id into null
func ref(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func money(d decimal.Decimal) string { return d.String() }

func date(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(wireDateLayout) + wireDateSuffix
}

func datePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return date(*t)
}

func clock(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(wireTimeLayout)
}

func clockPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return clock(*t)
}

func translateItem(_ Translator, rec models.Record) (Wire, error) {
	i, err := as[models.Item](rec)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":                i.ID,
		"code":              i.Code,
		"item_name":         i.Name,
		"default_pack_size": num(i.DefaultPackSize),
	}, nil
}

func translateName(_ Translator, rec models.Record) (Wire, error) {
	n, err := as[models.Name](rec)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":       n.ID,
		"name":     n.Name,
		"code":     n.Code,
		"type":     n.Type,
		"customer": n.IsCustomer,
		"supplier": n.IsSupplier,
	}, nil
}

func translateItemBatch(t Translator, rec models.Record) (Wire, error) {
	b, err := as[models.ItemBatch](rec)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":                b.ID,
		"store_ID":          t.StoreID,
		"item_ID":           ref(b.Item.GetID()),
		"pack_size":         num(b.PackSize),
		"expiry_date":       datePtr(b.ExpiryDate),
		"batch":             b.Batch,
		"available":         num(b.NumberOfPacks),
		"quantity":          num(b.NumberOfPacks),
		"stock_on_hand_tot": num(b.TotalQuantity()),
		"cost_price":        money(b.CostPrice),
		"sell_price":        money(b.SellPrice),
		"total_cost":        money(b.CostPrice.Mul(decimal.NewFromFloat(b.NumberOfPacks))),
		"name_ID":           ref(b.Supplier.GetID()),
	}, nil
}

func translateNumberSequence(_ Translator, rec models.Record) (Wire, error) {
	s, err := as[models.NumberSequence](rec)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":    s.ID,
		"name":  models.LegacySequenceName(s.SequenceKey, s.StoreID),
		"value": strconv.FormatInt(s.HighestNumberUsed, 10),
	}, nil
}

func translateNumberToReuse(_ Translator, rec models.Record) (Wire, error) {
	n, err := as[models.NumberToReuse](rec)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":            n.ID,
		"name":          models.LegacySequenceName(n.SequenceKey, n.StoreID),
		"number_to_use": strconv.FormatInt(n.Number, 10),
	}, nil
}

func translateRequisition(t Translator, rec models.Record) (Wire, error) {
	r, err := as[models.Requisition](rec)
	if err != nil {
		return nil, err
	}
	status, err := statuses.wire(r.Status)
	if err != nil {
		return nil, err
	}
	reqType, err := requisitionTypes.wire(r.Type)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":                  r.ID,
		"date_stock_take":     date(r.EntryDate),
		"date_entered":        date(r.EntryDate),
		"daysToSupply":        num(r.DaysToSupply),
		"name_ID":             ref(r.OtherStoreName.GetID()),
		"status":              status,
		"type":                reqType,
		"store_ID":            t.StoreID,
		"serial_number":       r.SerialNumber,
		"requester_reference": r.RequesterReference,
		"comment":             r.Comment,
		"user_ID":             ref(r.EnteredByID),
	}, nil
}

func translateRequisitionItem(_ Translator, rec models.Record) (Wire, error) {
	ri, err := as[models.RequisitionItem](rec)
	if err != nil {
		return nil, err
	}
	return Wire{
		"ID":                       ri.ID,
		"requisition_ID":           ref(ri.Requisition.GetID()),
		"item_ID":                  ref(ri.Item.GetID()),
		"stock_on_hand":            num(ri.StockOnHand),
		"daily_usage":              num(ri.DailyUsage),
		"imprest_or_prev_quantity": num(ri.ImprestQuantity),
		"Cust_stock_order":         num(ri.RequiredQuantity),
		"actualQuan":               num(ri.SuppliedQuantity),
		"comment":                  ri.Comment,
		"line_number":              strconv.Itoa(ri.SortIndex),
	}, nil
}

func translateTransaction(t Translator, rec models.Record) (Wire, error) {
	tr, err := as[models.Transaction](rec)
	if err != nil {
		return nil, err
	}
	txType, err := transactionTypes.wire(tr.Type)
	if err != nil {
		return nil, err
	}
	status, err := statuses.wire(tr.Status)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, line := range tr.Items {
		total = total.Add(line.TotalPrice())
	}

	return Wire{
		"ID":             tr.ID,
		"name_ID":        ref(tr.OtherParty.GetID()),
		"invoice_num":    tr.SerialNumber,
		"comment":        tr.Comment,
		"entry_date":     date(tr.EntryDate),
		"entry_time":     clock(tr.EntryDate),
		"type":           txType,
		"status":         status,
		"total":          money(total),
		"subtotal":       money(total),
		"their_ref":      tr.TheirRef,
		"confirm_date":   datePtr(tr.ConfirmDate),
		"confirm_time":   clockPtr(tr.ConfirmDate),
		"user_ID":        ref(tr.EnteredByID),
		"mode":           tr.Mode,
		"requisition_ID": ref(tr.LinkedRequisition.GetID()),
		"store_ID":       t.StoreID,
	}, nil
}

func translateTransactionBatch(t Translator, rec models.Record) (Wire, error) {
	tb, err := as[models.TransactionBatch](rec)
	if err != nil {
		return nil, err
	}

	var lineType any
	if tb.Transaction != nil {
		lineType = "stock_in"
		if tb.Transaction.IsOutgoing() {
			lineType = "stock_out"
		}
	}

	return Wire{
		"ID":              tb.ID,
		"transaction_ID":  ref(tb.Transaction.GetID()),
		"item_ID":         ref(tb.Item.GetID()),
		"item_name":       tb.ItemName,
		"item_line_ID":    ref(tb.ItemBatch.GetID()),
		"batch":           tb.Batch,
		"expiry_date":     datePtr(tb.ExpiryDate),
		"pack_size":       num(tb.PackSize),
		"quantity":        num(tb.NumberOfPacks),
		"cost_price":      money(tb.CostPrice),
		"sell_price":      money(tb.SellPrice),
		"price_extension": money(tb.TotalPrice()),
		"note":            tb.Note,
		"line_number":     strconv.Itoa(tb.SortIndex),
		"type":            lineType,
		"store_ID":        t.StoreID,
	}, nil
}

func translateStocktake(t Translator, rec models.Record) (Wire, error) {
	s, err := as[models.Stocktake](rec)
	if err != nil {
		return nil, err
	}
	status, err := stocktakeStatuses.wire(s.Status)
	if err != nil {
		return nil, err
	}

	stocktakeDate := s.CreatedDate
	if s.StocktakeDate != nil {
		stocktakeDate = *s.StocktakeDate
	}

	return Wire{
		"ID":                      s.ID,
		"Description":             s.Name,
		"stock_take_date":         date(stocktakeDate),
		"stock_take_time":         clock(stocktakeDate),
		"stock_take_created_date": date(s.CreatedDate),
		"created_by_ID":           ref(s.CreatedByID),
		"finalised_by_ID":         ref(s.FinalisedByID),
		"status":                  status,
		"invad_additions_ID":      ref(s.Additions.GetID()),
		"invad_reductions_ID":     ref(s.Reductions.GetID()),
		"comment":                 s.Comment,
		"serial_number":           s.SerialNumber,
		"store_ID":                t.StoreID,
	}, nil
}

func translateStocktakeBatch(_ Translator, rec models.Record) (Wire, error) {
	sb, err := as[models.StocktakeBatch](rec)
	if err != nil {
		return nil, err
	}

	counted := sb.SnapshotNumberOfPacks
	if sb.CountedNumberOfPacks != nil {
		counted = *sb.CountedNumberOfPacks
	}

	return Wire{
		"ID":                sb.ID,
		"stock_take_ID":     ref(sb.Stocktake.GetID()),
		"item_line_ID":      ref(sb.ItemBatch.GetID()),
		"item_ID":           ref(sb.ItemBatch.GetItemID()),
		"snapshot_qty":      num(sb.SnapshotNumberOfPacks),
		"snapshot_packsize": num(sb.PackSize),
		"stock_take_qty":    num(counted),
		"is_edited":         sb.CountedNumberOfPacks != nil,
		"line_number":       strconv.Itoa(sb.SortIndex),
		"expiry":            datePtr(sb.ExpiryDate),
		"cost_price":        money(sb.CostPrice),
		"sell_price":        money(sb.SellPrice),
		"Batch":             sb.Batch,
	}, nil
}
