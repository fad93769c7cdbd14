package mapper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

type parseFunc func(r *reader) (models.Record, error)

var parsers = map[models.RecordType]parseFunc{
	models.RecordItem:             parseItem,
	models.RecordItemBatch:        parseItemBatch,
	models.RecordName:             parseName,
	models.RecordNumberSequence:   parseNumberSequence,
	models.RecordNumberToReuse:    parseNumberToReuse,
	models.RecordRequisition:      parseRequisition,
	models.RecordRequisitionItem:  parseRequisitionItem,
	models.RecordStocktake:        parseStocktake,
	models.RecordStocktakeBatch:   parseStocktakeBatch,
	models.RecordTransaction:      parseTransaction,
	models.RecordTransactionBatch: parseTransactionBatch,
}

// Parse converts an inbound record in legacy field names into a local record.
// Missing fields take their zero value; malformed ones fail the record
func (t Translator) Parse(rt models.RecordType, w Wire) (models.Record, error) {
	id, _ := w["ID"].(string)

	fn, ok := parsers[rt]
	if !ok {
		return nil, t.wrap("parse", rt, id, ErrUnsupportedRecordType)
	}
	if id == "" {
		return nil, t.wrap("parse", rt, id, errors.New("record has no ID"))
	}

	r := &reader{w: w}
	rec, err := fn(r)
	if err == nil {
		err = r.err
	}
	if err != nil {
		return nil, t.wrap("parse", rt, id, err)
	}
	return rec, nil
}

// reader pulls typed values out of a wire map, keeping the first failure
type reader struct {
	w   Wire
	err error
}

func (r *reader) fail(key string, v any, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("field %s (%v): %w", key, v, err)
	}
}

func (r *reader) str(key string) string {
	switch v := r.w[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return num(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r *reader) float(key string) float64 {
	switch v := r.w[key].(type) {
	case nil:
		return 0
	case float64:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return 0
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			r.fail(key, v, err)
		}
		return f
	default:
		r.fail(key, v, errors.New("not a number"))
		return 0
	}
}

func (r *reader) integer(key string) int64 {
	return int64(r.float(key))
}

func (r *reader) money(key string) decimal.Decimal {
	switch v := r.w[key].(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			r.fail(key, v, err)
		}
		return d
	default:
		r.fail(key, v, errors.New("not a number"))
		return decimal.Zero
	}
}

func (r *reader) boolean(key string) bool {
	switch v := r.w[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case float64:
		return v != 0
	}
	return false
}

var dateLayouts = []string{
	wireDateLayout + wireDateSuffix,
	time.RFC3339,
	"2006-01-02T15:04:05",
	wireDateLayout,
}

func (r *reader) date(key string) time.Time {
	s := r.str(key)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	r.fail(key, s, errors.New("unrecognised date"))
	return time.Time{}
}

func (r *reader) datePtr(key string) *time.Time {
	t := r.date(key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// clock reads a time of day, either "15:04:05" or seconds since midnight
func (r *reader) clock(key string) time.Duration {
	switch v := r.w[key].(type) {
	case nil:
		return 0
	case float64:
		return time.Duration(v) * time.Second
	case string:
		if v == "" {
			return 0
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
		t, err := time.Parse(wireTimeLayout, v)
		if err != nil {
			r.fail(key, v, err)
			return 0
		}
		return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	}
	return 0
}

// dateTime joins a date field and its separate time-of-day field
func (r *reader) dateTime(dateKey, timeKey string) time.Time {
	d := r.date(dateKey)
	if d.IsZero() {
		return d
	}
	return d.Add(r.clock(timeKey))
}

func (r *reader) code(table codeTable, key string) string {
	code := r.str(key)
	v, err := table.internal(code)
	if err != nil {
		r.fail(key, code, err)
	}
	return v
}

func parseItem(r *reader) (models.Record, error) {
	return &models.Item{
		ID:              r.str("ID"),
		Code:            r.str("code"),
		Name:            r.str("item_name"),
		DefaultPackSize: r.float("default_pack_size"),
	}, nil
}

func parseName(r *reader) (models.Record, error) {
	return &models.Name{
		ID:         r.str("ID"),
		Code:       r.str("code"),
		Name:       r.str("name"),
		Type:       r.str("type"),
		IsCustomer: r.boolean("customer"),
		IsSupplier: r.boolean("supplier"),
	}, nil
}

func parseItemBatch(r *reader) (models.Record, error) {
	return &models.ItemBatch{
		ID:            r.str("ID"),
		ItemID:        r.str("item_ID"),
		Batch:         r.str("batch"),
		PackSize:      r.float("pack_size"),
		NumberOfPacks: r.float("available"),
		ExpiryDate:    r.datePtr("expiry_date"),
		CostPrice:     r.money("cost_price"),
		SellPrice:     r.money("sell_price"),
		SupplierID:    r.str("name_ID"),
	}, nil
}

func parseNumberSequence(r *reader) (models.Record, error) {
	key, storeID, ok := models.ParseLegacySequenceName(r.str("name"))
	if !ok {
		return nil, fmt.Errorf("sequence name %q has no store suffix", r.str("name"))
	}
	return &models.NumberSequence{
		ID:                r.str("ID"),
		SequenceKey:       key,
		StoreID:           storeID,
		HighestNumberUsed: r.integer("value"),
	}, nil
}

func parseNumberToReuse(r *reader) (models.Record, error) {
	key, storeID, ok := models.ParseLegacySequenceName(r.str("name"))
	if !ok {
		return nil, fmt.Errorf("sequence name %q has no store suffix", r.str("name"))
	}
	return &models.NumberToReuse{
		ID:          r.str("ID"),
		SequenceKey: key,
		StoreID:     storeID,
		Number:      r.integer("number_to_use"),
	}, nil
}

func parseRequisition(r *reader) (models.Record, error) {
	return &models.Requisition{
		ID:                 r.str("ID"),
		SerialNumber:       r.str("serial_number"),
		RequesterReference: r.str("requester_reference"),
		Status:             r.code(statuses, "status"),
		Type:               r.code(requisitionTypes, "type"),
		EntryDate:          r.date("date_entered"),
		DaysToSupply:       r.float("daysToSupply"),
		Comment:            r.str("comment"),
		OtherStoreNameID:   r.str("name_ID"),
		EnteredByID:        r.str("user_ID"),
	}, nil
}

func parseRequisitionItem(r *reader) (models.Record, error) {
	return &models.RequisitionItem{
		ID:               r.str("ID"),
		RequisitionID:    r.str("requisition_ID"),
		ItemID:           r.str("item_ID"),
		StockOnHand:      r.float("stock_on_hand"),
		DailyUsage:       r.float("daily_usage"),
		ImprestQuantity:  r.float("imprest_or_prev_quantity"),
		RequiredQuantity: r.float("Cust_stock_order"),
		SuppliedQuantity: r.float("actualQuan"),
		Comment:          r.str("comment"),
		SortIndex:        int(r.integer("line_number")),
	}, nil
}

func parseTransaction(r *reader) (models.Record, error) {
	tr := &models.Transaction{
		ID:                  r.str("ID"),
		SerialNumber:        r.str("invoice_num"),
		Type:                r.code(transactionTypes, "type"),
		Status:              r.code(statuses, "status"),
		Mode:                r.str("mode"),
		EntryDate:           r.dateTime("entry_date", "entry_time"),
		Comment:             r.str("comment"),
		TheirRef:            r.str("their_ref"),
		OtherPartyID:        r.str("name_ID"),
		EnteredByID:         r.str("user_ID"),
		LinkedRequisitionID: r.str("requisition_ID"),
	}
	if confirmed := r.dateTime("confirm_date", "confirm_time"); !confirmed.IsZero() {
		tr.ConfirmDate = &confirmed
	}
	if tr.Mode == "" {
		tr.Mode = "store"
	}
	return tr, nil
}

func parseTransactionBatch(r *reader) (models.Record, error) {
	return &models.TransactionBatch{
		ID:            r.str("ID"),
		TransactionID: r.str("transaction_ID"),
		ItemID:        r.str("item_ID"),
		ItemBatchID:   r.str("item_line_ID"),
		ItemName:      r.str("item_name"),
		Batch:         r.str("batch"),
		ExpiryDate:    r.datePtr("expiry_date"),
		PackSize:      r.float("pack_size"),
		NumberOfPacks: r.float("quantity"),
		CostPrice:     r.money("cost_price"),
		SellPrice:     r.money("sell_price"),
		Note:          r.str("note"),
		SortIndex:     int(r.integer("line_number")),
	}, nil
}

func parseStocktake(r *reader) (models.Record, error) {
	return &models.Stocktake{
		ID:            r.str("ID"),
		Name:          r.str("Description"),
		SerialNumber:  r.str("serial_number"),
		Status:        r.code(stocktakeStatuses, "status"),
		CreatedDate:   r.date("stock_take_created_date"),
		StocktakeDate: r.datePtr("stock_take_date"),
		Comment:       r.str("comment"),
		CreatedByID:   r.str("created_by_ID"),
		FinalisedByID: r.str("finalised_by_ID"),
		AdditionsID:   r.str("invad_additions_ID"),
		ReductionsID:  r.str("invad_reductions_ID"),
	}, nil
}

func parseStocktakeBatch(r *reader) (models.Record, error) {
	sb := &models.StocktakeBatch{
		ID:                    r.str("ID"),
		StocktakeID:           r.str("stock_take_ID"),
		ItemBatchID:           r.str("item_line_ID"),
		Batch:                 r.str("Batch"),
		ExpiryDate:            r.datePtr("expiry"),
		PackSize:              r.float("snapshot_packsize"),
		SnapshotNumberOfPacks: r.float("snapshot_qty"),
		CostPrice:             r.money("cost_price"),
		SellPrice:             r.money("sell_price"),
		SortIndex:             int(r.integer("line_number")),
	}
	if r.boolean("is_edited") {
		counted := r.float("stock_take_qty")
		sb.CountedNumberOfPacks = &counted
	}
	return sb, nil
}
