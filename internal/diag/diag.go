// Package diag runs the validation rule pipeline over a return's field
// set and produces diagnostics.
//
// Diagnostics are data, not errors: the pipeline always returns its
// findings, even when some of them carry error severity. Rules are pure
// functions of the field list and the year's limits, independent of
// each other, and evaluated in a fixed order so that two runs over the
// same input produce the same output in the same order.
package diag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
	"github.com/taxline/taxline/internal/money"
)

// Severity classifies a diagnostic finding.
type Severity string

const (
	// SeverityError marks a finding that blocks filing.
	SeverityError Severity = "error"
	// SeverityWarning marks an advisory finding.
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single validation finding. FieldID is the full
// canonical key ("1040.filingStatus"), FormID the owning form.
type Diagnostic struct {
	FormID   string   `json:"form_id"`
	FieldID  string   `json:"field_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// FieldView is the slice of a stored field the rules need: identity
// plus current value. The orchestrator builds views from store records.
type FieldView struct {
	FormID  string
	FieldID string
	Value   fieldval.Value
}

// Key returns the canonical key of the viewed field.
func (f FieldView) Key() string {
	return fieldid.Join(f.FormID, f.FieldID)
}

// Limits carries the year-versioned thresholds the rules compare
// against. The orchestrator fills it from the year configuration, so
// the same rule pipeline serves every supported year.
type Limits struct {
	// DependentAgeLimit is the exclusive upper bound for a qualifying
	// child. A non-positive limit disables the age checks.
	DependentAgeLimit int64
}

// ruleFunc is one validation rule. Rules must tolerate empty and
// partially-populated field lists without panicking.
type ruleFunc func(fields []FieldView, limits Limits) []Diagnostic

// rules is the fixed pipeline. Order here determines output order
// across rules; never reorder without a migration note.
var rules = []ruleFunc{
	ruleSSNFormat,
	ruleEINFormat,
	ruleNonNegativeAmounts,
	ruleFilingStatusPresent,
	ruleDependentAges,
}

// Run evaluates every rule against the field list and concatenates the
// findings. Pure: identical input yields identical output.
func Run(fields []FieldView, limits Limits) []Diagnostic {
	var out []Diagnostic
	for _, rule := range rules {
		out = append(out, rule(fields, limits)...)
	}
	if out == nil {
		out = []Diagnostic{}
	}
	return out
}

var (
	ssnPattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	einPattern = regexp.MustCompile(`^\d{2}-\d{7}$`)
)

// amountMarkers identify amount/wage-shaped fields by name.
// SchC net profit is deliberately absent: a business loss is legal.
var amountMarkers = []string{"wages", "amount", "income", "withholding"}

// ruleSSNFormat checks that populated SSN-shaped fields match NNN-NN-NNNN.
// Empty values are "not provided", which is the required-field rules'
// concern, not a format mismatch.
func ruleSSNFormat(fields []FieldView, _ Limits) []Diagnostic {
	var out []Diagnostic
	for _, f := range fields {
		if !strings.Contains(strings.ToLower(f.FieldID), "ssn") {
			continue
		}
		if fieldval.IsEmpty(f.Value) {
			continue
		}
		s, ok := fieldval.AsString(f.Value)
		if !ok || !ssnPattern.MatchString(s) {
			out = append(out, Diagnostic{
				FormID:   f.FormID,
				FieldID:  f.Key(),
				Severity: SeverityError,
				Message:  "SSN must match NNN-NN-NNNN",
			})
		}
	}
	return out
}

// ruleEINFormat checks that populated EIN-shaped fields match NN-NNNNNNN.
func ruleEINFormat(fields []FieldView, _ Limits) []Diagnostic {
	var out []Diagnostic
	for _, f := range fields {
		if !strings.Contains(strings.ToLower(f.FieldID), "ein") {
			continue
		}
		if fieldval.IsEmpty(f.Value) {
			continue
		}
		s, ok := fieldval.AsString(f.Value)
		if !ok || !einPattern.MatchString(s) {
			out = append(out, Diagnostic{
				FormID:   f.FormID,
				FieldID:  f.Key(),
				Severity: SeverityError,
				Message:  "EIN must match NN-NNNNNNN",
			})
		}
	}
	return out
}

// ruleNonNegativeAmounts rejects negative values in amount-shaped fields.
func ruleNonNegativeAmounts(fields []FieldView, _ Limits) []Diagnostic {
	var out []Diagnostic
	for _, f := range fields {
		if !isAmountShaped(f.FieldID) {
			continue
		}
		d, ok := fieldval.AsDecimal(f.Value)
		if !ok {
			continue
		}
		if money.IsNegative(d) {
			out = append(out, Diagnostic{
				FormID:   f.FormID,
				FieldID:  f.Key(),
				Severity: SeverityError,
				Message:  "Value must be positive",
			})
		}
	}
	return out
}

func isAmountShaped(fieldID string) bool {
	lower := strings.ToLower(fieldID)
	for _, marker := range amountMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ruleFilingStatusPresent requires a non-empty filing status field.
// Emits exactly one error referencing the canonical key, whether the
// field is absent or present-but-empty.
func ruleFilingStatusPresent(fields []FieldView, _ Limits) []Diagnostic {
	for _, f := range fields {
		if f.Key() != fieldid.KeyFilingStatus {
			continue
		}
		if !fieldval.IsEmpty(f.Value) {
			return nil
		}
		break
	}
	return []Diagnostic{{
		FormID:   fieldid.Form1040,
		FieldID:  fieldid.KeyFilingStatus,
		Severity: SeverityError,
		Message:  "Filing status is required",
	}}
}

// ruleDependentAges enforces the year's qualifying-child age bound when
// the child tax credit claim flag is set. One error per offending field.
func ruleDependentAges(fields []FieldView, limits Limits) []Diagnostic {
	if limits.DependentAgeLimit <= 0 {
		return nil
	}

	claimed := false
	for _, f := range fields {
		if f.Key() == fieldid.KeyCTCClaimed {
			if b, ok := fieldval.AsBool(f.Value); ok && b {
				claimed = true
			}
			break
		}
	}
	if !claimed {
		return nil
	}

	var out []Diagnostic
	for _, f := range fields {
		if !strings.Contains(strings.ToLower(f.FieldID), "dependentage") {
			continue
		}
		d, ok := fieldval.AsDecimal(f.Value)
		if !ok {
			continue
		}
		if d.Cmp(money.FromInt(limits.DependentAgeLimit)) >= 0 {
			out = append(out, Diagnostic{
				FormID:   f.FormID,
				FieldID:  f.Key(),
				Severity: SeverityError,
				Message:  fmt.Sprintf("Dependent must be under %d to claim the child tax credit", limits.DependentAgeLimit),
			})
		}
	}
	return out
}
