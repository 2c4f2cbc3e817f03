// Package fieldid normalizes tax-form field identifiers.
//
// Field keys arrive in three textual dialects depending on the producer:
// dot-separated ("SchC.netProfit"), underscore-separated ("SchC_netProfit"),
// and colon-separated ("SchC:netProfit"). Two independently maintained
// mapping tables historically used different conventions, so comparing
// un-normalized keys is the single largest correctness hazard in this
// domain. Every component that looks up or writes a field MUST call
// Canonical first.
package fieldid

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonical converts a raw field identifier to canonical form.
//
// Any run of ':', '_' or '.' separators collapses to a single '.'.
// Leading and trailing separator runs are dropped outright, so the
// canonical form never begins or ends with '.' ("_abc_" becomes "abc").
// Strings are NFC-normalized first so that visually identical keys from
// different input methods compare equal.
//
// Canonical is idempotent: Canonical(Canonical(s)) == Canonical(s).
// Malformed input never fails - the best-effort result is returned.
func Canonical(raw string) string {
	s := norm.NFC.String(raw)

	var b strings.Builder
	b.Grow(len(s))
	inSep := false
	for _, r := range s {
		if r == ':' || r == '_' || r == '.' {
			inSep = true
			continue
		}
		if inSep {
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			inSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Split divides a canonical key into (formID, fieldID) on the first '.'.
//
// A key with no separator belongs to no form: Split("justAField")
// returns ("", "justAField"). Split never fails on malformed input.
func Split(canonical string) (formID, fieldID string) {
	i := strings.IndexByte(canonical, '.')
	if i < 0 {
		return "", canonical
	}
	return canonical[:i], canonical[i+1:]
}

// Join builds a raw key from form and field parts.
// The result still needs Canonical before comparison - the parts
// themselves may carry legacy separators.
func Join(formID, fieldID string) string {
	if formID == "" {
		return fieldID
	}
	return formID + "." + fieldID
}

// Key is a canonical (form, field) pair.
type Key struct {
	Form  string
	Field string
}

// ParseKey canonicalizes raw and splits it into a Key.
func ParseKey(raw string) Key {
	form, field := Split(Canonical(raw))
	return Key{Form: form, Field: field}
}

// String returns the canonical string form of the key.
func (k Key) String() string {
	return Join(k.Form, k.Field)
}
