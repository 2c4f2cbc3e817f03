// Package audit implements the hash-chained provenance record for
// field mutations.
//
// Every field write appends an entry whose hash covers the previous
// entry's hash, making silent tampering detectable: recomputing the
// chain from the first entry either reproduces every stored hash or
// pinpoints the first entry where it diverges.
//
// Recording is best-effort by contract - a failed audit write is
// logged and never rolls back the field mutation it describes.
// Verification failures are structured results, never error returns.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/taxline/taxline/internal/fieldval"
)

// DomainAudit is the hash domain prefix. The version suffix enables
// future algorithm migration without ambiguity.
const DomainAudit = "taxline/audit/v1"

// Entry is one immutable audit record.
type Entry struct {
	ID        string // UUIDv7, assigned by the orchestrator
	ReturnID  string
	FormID    string
	FieldID   string // canonical
	UserID    string
	Action    string // "update", "recalculate", ...
	PrevValue string // canonical rendering of the value before the write
	NewValue  string // canonical rendering of the value after the write
	Timestamp int64  // unix seconds
	Seq       int64  // per-return sequence, assigned by the orchestrator
	PrevHash  string // hash of the preceding entry, "" for the first
	Hash      string
}

// EntryHash computes the chained hash for an entry.
//
// The hash covers the previous hash plus the identifying payload
// (return, form, field, user, action, timestamp), serialized as
// canonical JSON so the bytes are reproducible. Format:
// SHA-256(domain || 0x00 || prevHash || 0x00 || payload). The null
// separators prevent boundary ambiguity between the parts.
func EntryHash(prevHash string, e Entry) (string, error) {
	payload := fieldval.Object{
		"return_id": fieldval.String(e.ReturnID),
		"form_id":   fieldval.String(e.FormID),
		"field_id":  fieldval.String(e.FieldID),
		"user_id":   fieldval.String(e.UserID),
		"action":    fieldval.String(e.Action),
		"timestamp": fieldval.NumberFromInt64(e.Timestamp),
	}
	canonical, err := fieldval.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("audit entry hash: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DomainAudit))
	h.Write([]byte{0x00})
	h.Write([]byte(prevHash))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verification is the structured outcome of a chain check.
// A broken chain is data, not an error condition.
type Verification struct {
	Valid        bool   `json:"valid"`
	InvalidIndex int    `json:"invalid_index"` // 0-based entry index, -1 when valid
	Message      string `json:"message"`
}

// VerifyChain recomputes the hash chain over entries in order.
//
// The first entry must link from the empty previous hash. A mismatch
// at 0-based position i is reported as "chain broken at entry i+1" -
// entry numbering is 1-based for operators.
func VerifyChain(entries []Entry) Verification {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return broken(i, "previous-hash link does not match preceding entry")
		}
		want, err := EntryHash(prev, e)
		if err != nil {
			return broken(i, fmt.Sprintf("hash recomputation failed: %v", err))
		}
		if e.Hash != want {
			return broken(i, "stored hash does not match recomputed hash")
		}
		prev = e.Hash
	}
	return Verification{Valid: true, InvalidIndex: -1, Message: "chain intact"}
}

func broken(index int, why string) Verification {
	return Verification{
		Valid:        false,
		InvalidIndex: index,
		Message:      fmt.Sprintf("chain broken at entry %d: %s", index+1, why),
	}
}
