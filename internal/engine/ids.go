package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator supplies IDs for returns and audit entries.
// Abstracted so tests can produce deterministic IDs.
type Generator interface {
	NewID() (string, error)
}

// UUIDv7Generator is the production Generator. UUIDv7 embeds a
// timestamp, so IDs sort roughly by creation order.
type UUIDv7Generator struct{}

// NewID returns a fresh UUIDv7 string.
func (UUIDv7Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}
