package store

import (
	"context"
	"fmt"
	"strings"
)

// CreateReturn inserts a return header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored.
func (s *Store) CreateReturn(ctx context.Context, r Return) error {
	diagJSON, err := marshalDiagnostics(r.Diagnostics)
	if err != nil {
		return fmt.Errorf("create return: %w", err)
	}

	refund := r.Refund
	if refund == "" {
		refund = "0.00"
	}
	liability := r.TaxLiability
	if liability == "" {
		liability = "0.00"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO returns
		(id, taxpayer_id, year, is_locked, refund, tax_liability, diagnostics, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.TaxpayerID,
		r.Year,
		boolToInt(r.IsLocked),
		refund,
		liability,
		diagJSON,
		r.Seq,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create return: %w", err)
	}
	return nil
}

// CreateField inserts a field row. Field creation is always an
// explicit operation; nothing in the system creates fields as a side
// effect of writing values.
//
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) CreateField(ctx context.Context, f Field) error {
	raw, err := marshalValue(f.Value)
	if err != nil {
		return fmt.Errorf("create field: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fields
		(return_id, form_id, field_id, value, calculated, overridden, estimated,
		 sensitive, last_modified_by, updated_seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(return_id, form_id, field_id) DO NOTHING
	`,
		f.ReturnID,
		f.FormID,
		f.FieldID,
		raw,
		boolToInt(f.Calculated),
		boolToInt(f.Overridden),
		boolToInt(f.Estimated),
		boolToInt(f.Sensitive),
		f.LastModifiedBy,
		f.UpdatedSeq,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create field: %w", err)
	}
	return nil
}

// PatchField applies a partial update to an existing field. Nil patch
// members leave their columns untouched. Patching a missing field is
// a silent no-op; callers check existence first.
func (s *Store) PatchField(ctx context.Context, returnID, formID, fieldID string, p FieldPatch) error {
	sets, args, err := buildFieldPatch(p)
	if err != nil {
		return fmt.Errorf("patch field: %w", err)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, returnID, formID, fieldID)
	_, err = s.db.ExecContext(ctx,
		`UPDATE fields SET `+strings.Join(sets, ", ")+
			` WHERE return_id = ? AND form_id = ? AND field_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("patch field: %w", err)
	}
	return nil
}

// SetLocked flips a return's lock flag.
func (s *Store) SetLocked(ctx context.Context, returnID string, locked bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE returns SET is_locked = ? WHERE id = ?`,
		boolToInt(locked), returnID,
	)
	if err != nil {
		return fmt.Errorf("set locked: %w", err)
	}
	return nil
}

// InsertAudit appends one audit entry.
func (s *Store) InsertAudit(ctx context.Context, a AuditRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries
		(entry_id, return_id, form_id, field_id, user_id, action,
		 prev_value, new_value, timestamp, seq, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.EntryID, a.ReturnID, a.FormID, a.FieldID, a.UserID, a.Action,
		a.PrevValue, a.NewValue, a.Timestamp, a.Seq, a.PrevHash, a.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ApplyRecalc atomically commits one recalculation: every calculated
// field write plus the return's aggregate outputs land in a single
// transaction, so readers never observe a half-applied pass.
//
// Field writes mark calculated=1 and stamp the pass's seq. Writes
// target existing rows only; a write for a missing field is skipped
// by the WHERE clause, matching the no-implicit-creation rule.
func (s *Store) ApplyRecalc(ctx context.Context, returnID string, writes []CalcFieldWrite, rp ReturnPatch) error {
	diagJSON, err := marshalDiagnostics(rp.Diagnostics)
	if err != nil {
		return fmt.Errorf("apply recalc: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply recalc: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		raw, err := marshalValue(w.Value)
		if err != nil {
			return fmt.Errorf("apply recalc: field %s.%s: %w", w.FormID, w.FieldID, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE fields
			SET value = ?, calculated = 1, updated_seq = ?, updated_at = ?
			WHERE return_id = ? AND form_id = ? AND field_id = ?
		`, raw, rp.Seq, rp.UpdatedAt, returnID, w.FormID, w.FieldID)
		if err != nil {
			return fmt.Errorf("apply recalc: field %s.%s: %w", w.FormID, w.FieldID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE returns
		SET refund = ?, tax_liability = ?, diagnostics = ?, seq = ?, updated_at = ?
		WHERE id = ?
	`, rp.Refund, rp.TaxLiability, diagJSON, rp.Seq, rp.UpdatedAt, returnID)
	if err != nil {
		return fmt.Errorf("apply recalc: update return: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply recalc: commit: %w", err)
	}
	return nil
}

// buildFieldPatch assembles SET clauses for the non-nil patch members.
func buildFieldPatch(p FieldPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	if p.Value != nil {
		raw, err := marshalValue(p.Value)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, "value = ?")
		args = append(args, raw)
	}
	if p.Calculated != nil {
		sets = append(sets, "calculated = ?")
		args = append(args, boolToInt(*p.Calculated))
	}
	if p.Overridden != nil {
		sets = append(sets, "overridden = ?")
		args = append(args, boolToInt(*p.Overridden))
	}
	if p.Estimated != nil {
		sets = append(sets, "estimated = ?")
		args = append(args, boolToInt(*p.Estimated))
	}
	if p.Sensitive != nil {
		sets = append(sets, "sensitive = ?")
		args = append(args, boolToInt(*p.Sensitive))
	}
	if p.LastModifiedBy != nil {
		sets = append(sets, "last_modified_by = ?")
		args = append(args, *p.LastModifiedBy)
	}
	if p.UpdatedSeq != nil {
		sets = append(sets, "updated_seq = ?")
		args = append(args, *p.UpdatedSeq)
	}
	if p.UpdatedAt != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, *p.UpdatedAt)
	}
	return sets, args, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
