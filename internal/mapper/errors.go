package mapper

import (
	"errors"
	"fmt"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

var (
	ErrUnsupportedRecordType = errors.New("unsupported record type")
	ErrUnknownCode           = errors.New("unknown code")
)

// TranslationError carries enough context to find the offending record later.
// Callers decide whether to skip the record or abort the batch
type TranslationError struct {
	Op         string // translate or parse
	RecordType models.RecordType
	RecordID   string
	StoreID    string
	Err        error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("%s %s %q (store %q): %v", e.Op, e.RecordType, e.RecordID, e.StoreID, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }
