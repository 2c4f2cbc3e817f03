package engine

import (
	"context"
	"fmt"

	"github.com/taxline/taxline/internal/audit"
	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
	"github.com/taxline/taxline/internal/store"
)

// seedField is one field created with every new return.
type seedField struct {
	key        string
	value      fieldval.Value
	calculated bool
	sensitive  bool
}

// seedFields is the standard field set for a fresh return. Field
// creation happens here and nowhere else; updates and recalculation
// only ever write to fields this list created.
var seedFields = []seedField{
	{key: fieldid.KeyWages, value: fieldval.NumberFromInt64(0)},
	{key: fieldid.KeyWithholding, value: fieldval.NumberFromInt64(0)},
	{key: fieldid.KeySSN, value: fieldval.String(""), sensitive: true},
	{key: fieldid.KeyNetProfit, value: fieldval.NumberFromInt64(0)},
	{key: fieldid.KeyItemizedTotal, value: fieldval.NumberFromInt64(0)},
	{key: fieldid.KeyFilingStatus, value: fieldval.String("")},
	{key: fieldid.KeyCTCClaimed, value: fieldval.Bool(false)},
	{key: fieldid.KeyTotalIncome, value: fieldval.NumberFromInt64(0), calculated: true},
	{key: fieldid.KeyAGI, value: fieldval.NumberFromInt64(0), calculated: true},
	{key: fieldid.KeyTaxableIncome, value: fieldval.NumberFromInt64(0), calculated: true},
	{key: fieldid.KeySETax, value: fieldval.NumberFromInt64(0), calculated: true},
	{key: fieldid.KeyTotalTax, value: fieldval.NumberFromInt64(0), calculated: true},
	{key: fieldid.KeyRefund, value: fieldval.NumberFromInt64(0), calculated: true},
}

// SeedReturn creates a return with the standard field set and returns
// the new return's ID.
//
// The return must not exist for a given taxpayer/year pair more than
// once per caller intent, but the store does not enforce uniqueness -
// a second call simply creates a second return.
func (e *Engine) SeedReturn(ctx context.Context, taxpayerID string, year int) (string, error) {
	if _, err := e.years.ForYear(year); err != nil {
		return "", &OpError{
			Code:    ErrCodeUnknownYear,
			Message: err.Error(),
		}
	}

	id, err := e.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("seed return: %w", err)
	}
	ts := e.now.Now()

	if err := e.store.CreateReturn(ctx, store.Return{
		ID:         id,
		TaxpayerID: taxpayerID,
		Year:       year,
		UpdatedAt:  ts,
	}); err != nil {
		return "", fmt.Errorf("seed return: %w", err)
	}

	for _, sf := range seedFields {
		formID, fieldID := fieldid.Split(fieldid.Canonical(sf.key))
		if err := e.store.CreateField(ctx, store.Field{
			ReturnID:   id,
			FormID:     formID,
			FieldID:    fieldID,
			Value:      sf.value,
			Calculated: sf.calculated,
			Sensitive:  sf.sensitive,
			UpdatedAt:  ts,
		}); err != nil {
			return "", fmt.Errorf("seed return: field %s: %w", sf.key, err)
		}
	}

	e.recordAudit(ctx, store.AuditRow{
		ReturnID:  id,
		UserID:    "system",
		Action:    "create",
		PrevValue: "null",
		NewValue:  "null",
		Timestamp: ts,
	})

	return id, nil
}

// VerifyAudit loads a return's audit chain and checks its integrity.
func (e *Engine) VerifyAudit(ctx context.Context, returnID string) ([]store.AuditRow, audit.Verification, error) {
	rows, err := e.store.ListAudit(ctx, returnID)
	if err != nil {
		return nil, audit.Verification{}, fmt.Errorf("verify audit: %w", err)
	}

	entries := make([]audit.Entry, len(rows))
	for i, r := range rows {
		entries[i] = audit.Entry{
			ID:        r.EntryID,
			ReturnID:  r.ReturnID,
			FormID:    r.FormID,
			FieldID:   r.FieldID,
			UserID:    r.UserID,
			Action:    r.Action,
			PrevValue: r.PrevValue,
			NewValue:  r.NewValue,
			Timestamp: r.Timestamp,
			Seq:       r.Seq,
			PrevHash:  r.PrevHash,
			Hash:      r.Hash,
		}
	}
	return rows, audit.VerifyChain(entries), nil
}
