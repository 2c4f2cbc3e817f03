package engine

import (
	"errors"
	"fmt"
)

// OpError represents a rejected operation.
//
// Rejections include:
//   - Missing return or field: writes never create rows implicitly
//   - Locked return: a filed return accepts no mutations
//   - Invalid field key: canonicalization produced no form/field split
//   - Unknown year or filing status: configuration lookup missed
//
// OpError includes structured fields for diagnostics and recovery.
type OpError struct {
	// Code identifies the error category.
	Code OpErrorCode

	// Message is a human-readable description.
	Message string

	// ReturnID identifies the affected return.
	ReturnID string

	// FormID and FieldID identify the field (for field-level errors).
	FormID  string
	FieldID string
}

// OpErrorCode categorizes operation errors.
type OpErrorCode string

const (
	// ErrCodeReturnNotFound indicates the return does not exist.
	ErrCodeReturnNotFound OpErrorCode = "RETURN_NOT_FOUND"

	// ErrCodeFieldNotFound indicates the field does not exist.
	// Field creation is always explicit; writes never create fields.
	ErrCodeFieldNotFound OpErrorCode = "FIELD_NOT_FOUND"

	// ErrCodeReturnLocked indicates the return is locked against mutation.
	ErrCodeReturnLocked OpErrorCode = "RETURN_LOCKED"

	// ErrCodeInvalidFieldID indicates the field key had no form/field split.
	ErrCodeInvalidFieldID OpErrorCode = "INVALID_FIELD_ID"

	// ErrCodeUnknownYear indicates no configuration exists for the year.
	ErrCodeUnknownYear OpErrorCode = "UNKNOWN_TAX_YEAR"

	// ErrCodeUnknownFilingStatus indicates a deduction lookup miss.
	ErrCodeUnknownFilingStatus OpErrorCode = "UNKNOWN_FILING_STATUS"
)

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.ReturnID != "" && e.FieldID != "" {
		return fmt.Sprintf("%s: %s (return=%s, field=%s.%s)", e.Code, e.Message, e.ReturnID, e.FormID, e.FieldID)
	}
	if e.ReturnID != "" {
		return fmt.Sprintf("%s: %s (return=%s)", e.Code, e.Message, e.ReturnID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound returns true if the error is a missing return or field.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == ErrCodeReturnNotFound || oe.Code == ErrCodeFieldNotFound
	}
	return false
}

// IsLocked returns true if the error is a locked-return rejection.
func IsLocked(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == ErrCodeReturnLocked
	}
	return false
}

// CodeOf extracts the operation error code, or "" for other errors.
func CodeOf(err error) OpErrorCode {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// newReturnNotFound creates an OpError for a missing return.
func newReturnNotFound(returnID string) *OpError {
	return &OpError{
		Code:     ErrCodeReturnNotFound,
		Message:  "return does not exist",
		ReturnID: returnID,
	}
}

// newFieldNotFound creates an OpError for a missing field.
func newFieldNotFound(returnID, formID, fieldID string) *OpError {
	return &OpError{
		Code:     ErrCodeFieldNotFound,
		Message:  "field does not exist; create it explicitly before writing",
		ReturnID: returnID,
		FormID:   formID,
		FieldID:  fieldID,
	}
}

// newReturnLocked creates an OpError for a locked return.
func newReturnLocked(returnID string) *OpError {
	return &OpError{
		Code:     ErrCodeReturnLocked,
		Message:  "return is locked and accepts no mutations",
		ReturnID: returnID,
	}
}
