package store

import (
	"encoding/json"
	"fmt"

	"github.com/taxline/taxline/internal/diag"
	"github.com/taxline/taxline/internal/fieldval"
)

// marshalValue serializes a field value to canonical JSON for storage.
// Canonical bytes make stored values directly comparable and hashable.
func marshalValue(v fieldval.Value) (string, error) {
	b, err := fieldval.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(b), nil
}

// unmarshalValue deserializes a stored canonical JSON value.
func unmarshalValue(raw string) (fieldval.Value, error) {
	v, err := fieldval.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// marshalDiagnostics serializes a diagnostics slice for the returns
// row. A nil slice stores as the empty array, never as JSON null.
func marshalDiagnostics(ds []diag.Diagnostic) (string, error) {
	if ds == nil {
		ds = []diag.Diagnostic{}
	}
	b, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(b), nil
}

// unmarshalDiagnostics deserializes the returns.diagnostics column.
func unmarshalDiagnostics(raw string) ([]diag.Diagnostic, error) {
	if raw == "" {
		return []diag.Diagnostic{}, nil
	}
	var ds []diag.Diagnostic
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	if ds == nil {
		ds = []diag.Diagnostic{}
	}
	return ds, nil
}
