package mapper

import (
	"fmt"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

// codeTable maps internal enum values to the legacy server's short codes.
// Aliases are accepted inbound only and never produced outbound
type codeTable struct {
	name     string
	toWire   map[string]string
	fromWire map[string]string
}

func newCodeTable(name string, pairs map[string]string, aliases map[string]string) codeTable {
	c := codeTable{
		name:     name,
		toWire:   pairs,
		fromWire: make(map[string]string, len(pairs)+len(aliases)),
	}
	for internal, code := range pairs {
		c.fromWire[code] = internal
	}
	for code, internal := range aliases {
		c.fromWire[code] = internal
	}
	return c
}

func (c codeTable) wire(internal string) (string, error) {
	code, ok := c.toWire[internal]
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrUnknownCode, c.name, internal)
	}
	return code, nil
}

func (c codeTable) internal(code string) (string, error) {
	v, ok := c.fromWire[code]
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrUnknownCode, c.name, code)
	}
	return v, nil
}

var (
	transactionTypes = newCodeTable("transaction type", map[string]string{
		models.TransactionCustomerInvoice:     "ci",
		models.TransactionSupplierInvoice:     "si",
		models.TransactionCustomerCredit:      "cc",
		models.TransactionSupplierCredit:      "sc",
		models.TransactionInventoryAdjustment: "in",
		models.TransactionPrescription:        "pi",
	}, nil)

	statuses = newCodeTable("status", map[string]string{
		models.StatusNew:       "nw",
		models.StatusConfirmed: "cn",
		models.StatusFinalised: "fn",
	}, map[string]string{
		"wp": models.StatusNew,
		"wf": models.StatusFinalised,
		"sg": models.StatusNew,
	})

	stocktakeStatuses = newCodeTable("stocktake status", map[string]string{
		models.StatusNew:       "sg",
		models.StatusFinalised: "fn",
	}, map[string]string{
		"nw": models.StatusNew,
	})

	requisitionTypes = newCodeTable("requisition type", map[string]string{
		models.RequisitionRequest:  "request",
		models.RequisitionResponse: "response",
	}, map[string]string{
		"im":      models.RequisitionRequest,
		"imprest": models.RequisitionRequest,
	})

	changeTypes = newCodeTable("change type", map[string]string{
		string(models.ChangeCreate): "I",
		string(models.ChangeUpdate): "U",
		string(models.ChangeDelete): "D",
	}, nil)
)

// TransactionTypeCode returns the legacy code for an internal transaction type
func TransactionTypeCode(t string) (string, error) { return transactionTypes.wire(t) }

// TransactionTypeFromCode accepts a legacy transaction type code
func TransactionTypeFromCode(code string) (string, error) { return transactionTypes.internal(code) }

// StatusCode returns the legacy code for an invoice or requisition status
func StatusCode(s string) (string, error) { return statuses.wire(s) }

// StatusFromCode accepts a legacy status code, including inbound-only aliases
func StatusFromCode(code string) (string, error) { return statuses.internal(code) }

// ChangeTypeCode returns I, U or D
func ChangeTypeCode(c models.ChangeType) (string, error) { return changeTypes.wire(string(c)) }

// ChangeTypeFromCode accepts I, U or D
func ChangeTypeFromCode(code string) (models.ChangeType, error) {
	v, err := changeTypes.internal(code)
	return models.ChangeType(v), err
}
