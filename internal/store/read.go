package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetReturn loads a return header by ID.
// Returns sql.ErrNoRows (wrapped) when the return does not exist.
func (s *Store) GetReturn(ctx context.Context, returnID string) (Return, error) {
	var (
		r       Return
		locked  int
		diagRaw string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, taxpayer_id, year, is_locked, refund, tax_liability, diagnostics, seq, updated_at
		FROM returns
		WHERE id = ?
	`, returnID).Scan(
		&r.ID, &r.TaxpayerID, &r.Year, &locked,
		&r.Refund, &r.TaxLiability, &diagRaw, &r.Seq, &r.UpdatedAt,
	)
	if err != nil {
		return Return{}, fmt.Errorf("get return %s: %w", returnID, err)
	}
	r.IsLocked = locked != 0

	r.Diagnostics, err = unmarshalDiagnostics(diagRaw)
	if err != nil {
		return Return{}, fmt.Errorf("get return %s: %w", returnID, err)
	}
	return r, nil
}

// GetField loads one field by its canonical parts.
// Returns sql.ErrNoRows (wrapped) when the field does not exist.
func (s *Store) GetField(ctx context.Context, returnID, formID, fieldID string) (Field, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT return_id, form_id, field_id, value, calculated, overridden, estimated,
		       sensitive, last_modified_by, updated_seq, updated_at
		FROM fields
		WHERE return_id = ? AND form_id = ? AND field_id = ?
	`, returnID, formID, fieldID)

	f, err := scanField(row)
	if err != nil {
		return Field{}, fmt.Errorf("get field %s/%s.%s: %w", returnID, formID, fieldID, err)
	}
	return f, nil
}

// GetFields returns every field of a return in deterministic order:
// ORDER BY form_id, field_id COLLATE BINARY. Deterministic ordering
// keeps snapshots, diagnostics, and golden output reproducible.
//
// Returns an empty slice (not nil) when the return has no fields.
func (s *Store) GetFields(ctx context.Context, returnID string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT return_id, form_id, field_id, value, calculated, overridden, estimated,
		       sensitive, last_modified_by, updated_seq, updated_at
		FROM fields
		WHERE return_id = ?
		ORDER BY form_id COLLATE BINARY ASC, field_id COLLATE BINARY ASC
	`, returnID)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}

	if fields == nil {
		fields = []Field{}
	}
	return fields, nil
}

// ListAudit returns a return's audit entries ordered by sequence.
//
// Returns an empty slice (not nil) when no entries exist.
func (s *Store) ListAudit(ctx context.Context, returnID string) ([]AuditRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, return_id, form_id, field_id, user_id, action,
		       prev_value, new_value, timestamp, seq, prev_hash, hash
		FROM audit_entries
		WHERE return_id = ?
		ORDER BY seq ASC, id ASC
	`, returnID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(
			&a.EntryID, &a.ReturnID, &a.FormID, &a.FieldID, &a.UserID, &a.Action,
			&a.PrevValue, &a.NewValue, &a.Timestamp, &a.Seq, &a.PrevHash, &a.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	if entries == nil {
		entries = []AuditRow{}
	}
	return entries, nil
}

// LastAuditHash returns the hash of a return's most recent audit entry,
// or "" when the chain is empty.
func (s *Store) LastAuditHash(ctx context.Context, returnID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT hash FROM audit_entries
		WHERE return_id = ?
		ORDER BY seq DESC, id DESC
		LIMIT 1
	`, returnID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last audit hash: %w", err)
	}
	return hash, nil
}

// NextSeq returns the next per-return sequence number and bumps the
// stored counter. The single-connection pool serializes callers.
func (s *Store) NextSeq(ctx context.Context, returnID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("next seq: begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT seq FROM returns WHERE id = ?`, returnID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}

	seq++
	if _, err := tx.ExecContext(ctx,
		`UPDATE returns SET seq = ? WHERE id = ?`, seq, returnID,
	); err != nil {
		return 0, fmt.Errorf("next seq: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("next seq: commit: %w", err)
	}
	return seq, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanField(row rowScanner) (Field, error) {
	var (
		f                                            Field
		raw                                          string
		calculated, overridden, estimated, sensitive int
	)
	if err := row.Scan(
		&f.ReturnID, &f.FormID, &f.FieldID, &raw,
		&calculated, &overridden, &estimated, &sensitive,
		&f.LastModifiedBy, &f.UpdatedSeq, &f.UpdatedAt,
	); err != nil {
		return Field{}, err
	}

	value, err := unmarshalValue(raw)
	if err != nil {
		return Field{}, err
	}
	f.Value = value
	f.Calculated = calculated != 0
	f.Overridden = overridden != 0
	f.Estimated = estimated != 0
	f.Sensitive = sensitive != 0
	return f, nil
}
