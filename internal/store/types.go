package store

import (
	"github.com/taxline/taxline/internal/diag"
	"github.com/taxline/taxline/internal/fieldval"
)

// Return is one tax return's header row: identity, lock state, and the
// aggregate outputs of the last recalculation.
type Return struct {
	ID           string
	TaxpayerID   string
	Year         int
	IsLocked     bool
	Refund       string // decimal string, cents precision
	TaxLiability string // decimal string, cents precision
	Diagnostics  []diag.Diagnostic
	Seq          int64
	UpdatedAt    int64
}

// Field is one stored field with its full flag set.
type Field struct {
	ReturnID       string
	FormID         string
	FieldID        string // canonical
	Value          fieldval.Value
	Calculated     bool
	Overridden     bool
	Estimated      bool
	Sensitive      bool
	LastModifiedBy string
	UpdatedSeq     int64
	UpdatedAt      int64
}

// FieldPatch describes a partial update to an existing field. Nil
// members are left untouched, so a patch can change the value without
// disturbing flags and vice versa.
type FieldPatch struct {
	Value          fieldval.Value
	Calculated     *bool
	Overridden     *bool
	Estimated      *bool
	Sensitive      *bool
	LastModifiedBy *string
	UpdatedSeq     *int64
	UpdatedAt      *int64
}

// CalcFieldWrite is one calculated value landing during a
// recalculation commit. These always set calculated=1.
type CalcFieldWrite struct {
	FormID  string
	FieldID string
	Value   fieldval.Value
}

// ReturnPatch carries the aggregate outputs of a recalculation.
type ReturnPatch struct {
	Refund       string
	TaxLiability string
	Diagnostics  []diag.Diagnostic
	Seq          int64
	UpdatedAt    int64
}

// AuditRow is one persisted audit entry. The store treats hash fields
// as opaque; chaining and verification live in the audit package.
type AuditRow struct {
	EntryID   string
	ReturnID  string
	FormID    string
	FieldID   string
	UserID    string
	Action    string
	PrevValue string
	NewValue  string
	Timestamp int64
	Seq       int64
	PrevHash  string
	Hash      string
}
