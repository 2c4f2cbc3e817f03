// Package calc implements the pure tax calculation engine.
//
// Calculate takes a full snapshot of one return's forms and fields and
// produces recomputed values, aggregate totals, and calculation-level
// diagnostics. It is deliberately stateless and store-free: it knows
// nothing about override locks or persistence. Deciding which of its
// proposed writes actually land is the orchestrator's job.
package calc

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/taxline/taxline/internal/diag"
	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
	"github.com/taxline/taxline/internal/money"
	"github.com/taxline/taxline/internal/taxyear"
)

// Snapshot maps formID -> fieldID -> current value for one return.
type Snapshot map[string]map[string]fieldval.Value

// Value looks up a field by canonical parts. Returns nil if absent.
func (s Snapshot) Value(formID, fieldID string) fieldval.Value {
	form, ok := s[formID]
	if !ok {
		return nil
	}
	return form[fieldID]
}

// Set places a value, creating the form map as needed.
func (s Snapshot) Set(formID, fieldID string, v fieldval.Value) {
	form, ok := s[formID]
	if !ok {
		form = make(map[string]fieldval.Value)
		s[formID] = form
	}
	form[fieldID] = v
}

// FieldUpdate is one write the engine wants to make. Whether it lands
// depends on the field's override lock, which the engine cannot see.
type FieldUpdate struct {
	FormID  string
	FieldID string
	Value   fieldval.Value
}

// Result is the outcome of one calculation pass.
type Result struct {
	Refund        *apd.Decimal
	TaxLiability  *apd.Decimal
	Diagnostics   []diag.Diagnostic
	UpdatedFields []FieldUpdate
}

// defaultFilingStatus is used when the filing status field is empty.
// The diagnostics pipeline reports the missing status separately; the
// engine still computes so the user sees provisional totals.
const defaultFilingStatus = "single"

// Calculate recomputes a return from a snapshot under one year's
// configuration.
//
// The model: deduction is the larger of the standard deduction for the
// filing status and the supplied itemized total; AGI is wages plus
// business profit; self-employment tax applies to positive business
// profit only; liability is the flat marginal rate on (AGI - deduction)
// plus SE tax; refund is withholding minus liability, floored at zero.
// Every amount is rounded half-up to cents exactly once.
//
// An unknown (non-empty) filing status fails with
// taxyear.ErrUnknownFilingStatus.
func Calculate(cfg taxyear.Config, snap Snapshot) (Result, error) {
	wages := amountOrZero(snap, fieldid.FormW2, "wages")
	profit := amountOrZero(snap, fieldid.FormSchC, "netProfit")
	itemized := amountOrZero(snap, fieldid.FormSchA, "itemizedTotal")
	withholding := amountOrZero(snap, fieldid.FormW2, "withholding")

	status := filingStatus(snap)
	standard, err := cfg.DeductionFor(status)
	if err != nil {
		return Result{}, err
	}
	deduction := money.Max(standard, itemized)

	totalIncome, err := money.Add(wages, profit)
	if err != nil {
		return Result{}, fmt.Errorf("total income: %w", err)
	}
	// Simplified AGI: no above-the-line adjustments modeled.
	agi := totalIncome

	seTax, err := selfEmploymentTax(cfg, profit)
	if err != nil {
		return Result{}, err
	}

	taxable, err := money.Sub(agi, deduction)
	if err != nil {
		return Result{}, fmt.Errorf("taxable income: %w", err)
	}
	taxable = money.FloorZero(taxable)

	incomeTax, err := money.Mul(taxable, cfg.MarginalRate)
	if err != nil {
		return Result{}, fmt.Errorf("income tax: %w", err)
	}
	incomeTax, err = money.RoundCents(incomeTax)
	if err != nil {
		return Result{}, err
	}

	liability, err := money.Add(incomeTax, seTax)
	if err != nil {
		return Result{}, fmt.Errorf("liability: %w", err)
	}
	liability, err = money.RoundCents(liability)
	if err != nil {
		return Result{}, err
	}

	refund, err := money.Sub(withholding, liability)
	if err != nil {
		return Result{}, fmt.Errorf("refund: %w", err)
	}
	refund, err = money.RoundCents(money.FloorZero(refund))
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Refund:       refund,
		TaxLiability: liability,
		Diagnostics:  creditDiagnostics(cfg, agi),
	}

	for _, u := range []struct {
		form  string
		field string
		value *apd.Decimal
	}{
		{fieldid.Form1040, "totalIncome", totalIncome},
		{fieldid.Form1040, "agi", agi},
		{fieldid.Form1040, "taxableIncome", taxable},
		{fieldid.FormSchSE, "seTax", seTax},
		{fieldid.Form1040, "totalTax", liability},
		{fieldid.Form1040, "refund", refund},
	} {
		cents, err := money.RoundCents(u.value)
		if err != nil {
			return Result{}, err
		}
		res.UpdatedFields = append(res.UpdatedFields, FieldUpdate{
			FormID:  u.form,
			FieldID: u.field,
			Value:   fieldval.NumberFromDecimal(cents),
		})
	}

	return res, nil
}

// selfEmploymentTax computes the SE tax on positive business profit.
// Losses owe nothing.
func selfEmploymentTax(cfg taxyear.Config, profit *apd.Decimal) (*apd.Decimal, error) {
	if !money.IsPositive(profit) {
		return money.Zero(), nil
	}
	seTax, err := money.Mul(profit, cfg.SETaxRate)
	if err != nil {
		return nil, fmt.Errorf("se tax: %w", err)
	}
	return money.RoundCents(seTax)
}

// creditDiagnostics emits the credit-eligibility findings gated on AGI.
func creditDiagnostics(cfg taxyear.Config, agi *apd.Decimal) []diag.Diagnostic {
	var out []diag.Diagnostic
	if agi.Cmp(cfg.CTCAGIThreshold) > 0 {
		out = append(out, diag.Diagnostic{
			FormID:   fieldid.Form1040,
			FieldID:  fieldid.KeyCTCClaimed,
			Severity: diag.SeverityWarning,
			Message: fmt.Sprintf("Adjusted gross income exceeds the child tax credit threshold of %s",
				cfg.CTCAGIThreshold.Text('f')),
		})
	}
	return out
}

// filingStatus reads the filing status field, defaulting when empty.
func filingStatus(snap Snapshot) string {
	v := snap.Value(fieldid.Form1040, "filingStatus")
	if fieldval.IsEmpty(v) {
		return defaultFilingStatus
	}
	s, ok := fieldval.AsString(v)
	if !ok || s == "" {
		return defaultFilingStatus
	}
	return s
}

// amountOrZero reads a numeric field, treating absent or non-numeric
// values as zero. Partial returns are normal mid-entry.
func amountOrZero(snap Snapshot, formID, fieldID string) *apd.Decimal {
	v := snap.Value(formID, fieldID)
	if v == nil {
		return money.Zero()
	}
	d, ok := fieldval.AsDecimal(v)
	if !ok {
		return money.Zero()
	}
	return d
}

// IsUnknownFilingStatus reports whether err is a deduction lookup miss.
func IsUnknownFilingStatus(err error) bool {
	return errors.Is(err, taxyear.ErrUnknownFilingStatus)
}
