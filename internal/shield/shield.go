// Package shield is the encryption boundary for PII-shaped values.
//
// Values that look like an SSN or EIN are sealed before they reach the
// store and revealed when a snapshot is built; everything else passes
// through untouched. The engine depends only on the Sealer interface -
// the secretbox implementation is the production default, the
// Passthrough implementation serves tests and deployments that encrypt
// at a lower layer.
package shield

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/taxline/taxline/internal/fieldval"
)

// sealedPrefix marks a sealed value's string form. The version segment
// allows the sealing scheme to change without re-sealing history.
const sealedPrefix = "sealed:v1:"

var (
	ssnShape = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	einShape = regexp.MustCompile(`^\d{2}-\d{7}$`)
)

// Classify reports whether a value is PII-shaped: a string matching
// the SSN or EIN pattern. Classification looks at the value, not the
// field name - a taxpayer pasting an SSN into the wrong box still
// deserves sealing.
func Classify(v fieldval.Value) bool {
	s, ok := fieldval.AsString(v)
	if !ok {
		return false
	}
	return ssnShape.MatchString(s) || einShape.MatchString(s)
}

// Sealer transforms sensitive values at the storage boundary.
// Seal and Open must round-trip: Open(Seal(v)) == v.
type Sealer interface {
	Seal(v fieldval.Value) (fieldval.Value, error)
	Open(v fieldval.Value) (fieldval.Value, error)
}

// Passthrough is the identity Sealer.
type Passthrough struct{}

// Seal returns v unchanged.
func (Passthrough) Seal(v fieldval.Value) (fieldval.Value, error) { return v, nil }

// Open returns v unchanged.
func (Passthrough) Open(v fieldval.Value) (fieldval.Value, error) { return v, nil }

// Secretbox seals values with NaCl secretbox under a fixed 32-byte key.
// Key management (rotation, KMS) belongs to the deployment, not here.
type Secretbox struct {
	key [32]byte
}

// NewSecretbox creates a Sealer from a 32-byte key.
func NewSecretbox(key [32]byte) *Secretbox {
	return &Secretbox{key: key}
}

// Seal encrypts the canonical JSON form of v and wraps it as a
// prefixed, base64 string value. Already-sealed values pass through
// so the operation is idempotent.
func (s *Secretbox) Seal(v fieldval.Value) (fieldval.Value, error) {
	if isSealed(v) {
		return v, nil
	}

	plaintext, err := fieldval.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return fieldval.String(sealedPrefix + base64.StdEncoding.EncodeToString(box)), nil
}

// Open reverses Seal. Values without the sealed prefix pass through.
func (s *Secretbox) Open(v fieldval.Value) (fieldval.Value, error) {
	str, ok := fieldval.AsString(v)
	if !ok || !strings.HasPrefix(str, sealedPrefix) {
		return v, nil
	}

	box, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(str, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("open: decode: %w", err)
	}
	if len(box) < 24 {
		return nil, fmt.Errorf("open: sealed value too short")
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	plaintext, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("open: authentication failed")
	}

	out, err := fieldval.FromJSON(plaintext)
	if err != nil {
		return nil, fmt.Errorf("open: decode value: %w", err)
	}
	return out, nil
}

// isSealed reports whether v already carries the sealed prefix.
func isSealed(v fieldval.Value) bool {
	s, ok := fieldval.AsString(v)
	return ok && strings.HasPrefix(s, sealedPrefix)
}
