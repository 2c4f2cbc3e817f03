package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taxline/taxline/internal/audit"
	"github.com/taxline/taxline/internal/calc"
	"github.com/taxline/taxline/internal/diag"
	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
	"github.com/taxline/taxline/internal/money"
	"github.com/taxline/taxline/internal/shield"
	"github.com/taxline/taxline/internal/store"
	"github.com/taxline/taxline/internal/taxyear"
)

// Engine is the recalculation orchestrator. It owns the coordination
// between the store, the pure calculation engine, the diagnostics
// pipeline, and the audit chain.
//
// Thread-safety model:
//   - EnqueueRecalc(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - ApplyFieldUpdate()/Recalculate(): serialized by the store's
//     single-connection pool
//
// INVARIANTS:
//   - Writes never create fields; creation is an explicit operation
//   - Recalculation never writes to an overridden field
//   - Recalculation never changes override or estimated flags
//   - A recalculation pass commits atomically or not at all
type Engine struct {
	store  *store.Store
	years  *taxyear.Registry
	sealer shield.Sealer
	ids    Generator
	now    TimeSource
	queue  *recalcQueue
	log    *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithSealer replaces the PII sealer. The default is the passthrough
// sealer; production wiring installs the secretbox sealer.
func WithSealer(s shield.Sealer) Option {
	return func(e *Engine) {
		e.sealer = s
	}
}

// WithIDGenerator replaces the ID generator. Used in tests for
// deterministic IDs.
func WithIDGenerator(g Generator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithTimeSource replaces the wall clock. Used in tests to pin
// timestamps.
func WithTimeSource(t TimeSource) Option {
	return func(e *Engine) {
		e.now = t
	}
}

// WithLogger replaces the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine over a store and a compiled year registry.
func New(s *store.Store, years *taxyear.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		years:  years,
		sealer: shield.Passthrough{},
		ids:    UUIDv7Generator{},
		now:    systemTime{},
		queue:  newRecalcQueue(),
		log:    slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// UpdateMeta carries optional flag changes for a field update. Nil
// members leave the stored flag untouched, so an ordinary value write
// cannot accidentally clear an override.
type UpdateMeta struct {
	Override  *bool
	Estimated *bool
}

// UpdateRequest is one field mutation.
type UpdateRequest struct {
	ReturnID string
	FieldKey string // any dialect; canonicalized on entry
	Value    fieldval.Value
	Actor    string
	Meta     UpdateMeta
}

// ApplyFieldUpdate writes one field value.
//
// The key is canonicalized first; a key that yields no form/field
// split is rejected with INVALID_FIELD_ID. The return must exist and
// be unlocked, and the field must already exist - updates never create
// fields. A manual write clears the calculated flag. Values that
// classify as PII are sealed before storage.
//
// The audit entry is best-effort: a failed audit write is logged and
// never rolls back the field mutation.
func (e *Engine) ApplyFieldUpdate(ctx context.Context, req UpdateRequest) (store.Field, error) {
	canonical := fieldid.Canonical(req.FieldKey)
	formID, fieldID := fieldid.Split(canonical)
	if formID == "" || fieldID == "" {
		return store.Field{}, &OpError{
			Code:     ErrCodeInvalidFieldID,
			Message:  fmt.Sprintf("key %q does not split into form and field", req.FieldKey),
			ReturnID: req.ReturnID,
			FieldID:  canonical,
		}
	}

	ret, err := e.loadUnlocked(ctx, req.ReturnID)
	if err != nil {
		return store.Field{}, err
	}

	field, err := e.store.GetField(ctx, ret.ID, formID, fieldID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Field{}, newFieldNotFound(ret.ID, formID, fieldID)
		}
		return store.Field{}, fmt.Errorf("apply field update: %w", err)
	}

	prev, err := fieldval.CanonicalString(field.Value)
	if err != nil {
		return store.Field{}, fmt.Errorf("apply field update: render previous value: %w", err)
	}

	// A field stays sensitive once marked; a plain field becomes
	// sensitive the moment a PII-shaped value lands in it.
	sensitive := field.Sensitive || shield.Classify(req.Value)
	value := req.Value
	if sensitive {
		value, err = e.sealer.Seal(req.Value)
		if err != nil {
			return store.Field{}, fmt.Errorf("apply field update: %w", err)
		}
	}

	seq, err := e.store.NextSeq(ctx, ret.ID)
	if err != nil {
		return store.Field{}, fmt.Errorf("apply field update: %w", err)
	}
	ts := e.now.Now()

	calculated := false
	patch := store.FieldPatch{
		Value:          value,
		Calculated:     &calculated,
		Overridden:     req.Meta.Override,
		Estimated:      req.Meta.Estimated,
		Sensitive:      &sensitive,
		LastModifiedBy: &req.Actor,
		UpdatedSeq:     &seq,
		UpdatedAt:      &ts,
	}
	if err := e.store.PatchField(ctx, ret.ID, formID, fieldID, patch); err != nil {
		return store.Field{}, fmt.Errorf("apply field update: %w", err)
	}

	next, err := fieldval.CanonicalString(value)
	if err != nil {
		return store.Field{}, fmt.Errorf("apply field update: render new value: %w", err)
	}
	e.recordAudit(ctx, store.AuditRow{
		ReturnID:  ret.ID,
		FormID:    formID,
		FieldID:   fieldID,
		UserID:    req.Actor,
		Action:    "update",
		PrevValue: prev,
		NewValue:  next,
		Timestamp: ts,
		Seq:       seq,
	})

	field.Value = value
	field.Calculated = false
	if req.Meta.Override != nil {
		field.Overridden = *req.Meta.Override
	}
	if req.Meta.Estimated != nil {
		field.Estimated = *req.Meta.Estimated
	}
	field.Sensitive = sensitive
	field.LastModifiedBy = req.Actor
	field.UpdatedSeq = seq
	field.UpdatedAt = ts
	return field, nil
}

// RecalcResult summarizes one committed recalculation pass.
type RecalcResult struct {
	Refund            string
	TaxLiability      string
	Diagnostics       []diag.Diagnostic
	Applied           []string // canonical keys written
	SkippedOverridden []string // canonical keys protected by override
}

// Recalculate runs one full calculation pass over a return and commits
// the outcome atomically.
//
// Proposed writes targeting overridden fields are skipped silently -
// the user's number wins and the skip is not an error. Writes
// targeting fields that do not exist are likewise skipped; the
// calculation engine cannot create fields. Override and estimated
// flags are never modified here.
func (e *Engine) Recalculate(ctx context.Context, returnID string) (RecalcResult, error) {
	ret, err := e.loadUnlocked(ctx, returnID)
	if err != nil {
		return RecalcResult{}, err
	}

	fields, err := e.store.GetFields(ctx, ret.ID)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}

	snap, err := e.buildSnapshot(fields)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}

	cfg, err := e.years.ForYear(ret.Year)
	if err != nil {
		return RecalcResult{}, &OpError{
			Code:     ErrCodeUnknownYear,
			Message:  err.Error(),
			ReturnID: ret.ID,
		}
	}

	res, err := calc.Calculate(cfg, snap)
	if err != nil {
		if calc.IsUnknownFilingStatus(err) {
			return RecalcResult{}, &OpError{
				Code:     ErrCodeUnknownFilingStatus,
				Message:  err.Error(),
				ReturnID: ret.ID,
				FormID:   fieldid.Form1040,
				FieldID:  "filingStatus",
			}
		}
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}

	writes, applied, skipped := e.filterUpdates(ret.ID, fields, res.UpdatedFields)
	for _, key := range applied {
		form, field := fieldid.Split(key)
		snap.Set(form, field, valueForKey(writes, form, field))
	}

	diagnostics := diag.Run(viewsFromSnapshot(fields, snap), diag.Limits{
		DependentAgeLimit: cfg.DependentAgeLimit,
	})
	diagnostics = append(diagnostics, res.Diagnostics...)

	refund, err := money.Cents(res.Refund)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}
	liability, err := money.Cents(res.TaxLiability)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}

	seq, err := e.store.NextSeq(ctx, ret.ID)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}
	ts := e.now.Now()

	rp := store.ReturnPatch{
		Refund:       refund,
		TaxLiability: liability,
		Diagnostics:  diagnostics,
		Seq:          seq,
		UpdatedAt:    ts,
	}
	if err := e.store.ApplyRecalc(ctx, ret.ID, writes, rp); err != nil {
		return RecalcResult{}, fmt.Errorf("recalculate: %w", err)
	}

	e.recordAudit(ctx, store.AuditRow{
		ReturnID:  ret.ID,
		UserID:    "system",
		Action:    "recalculate",
		PrevValue: ret.TaxLiability,
		NewValue:  liability,
		Timestamp: ts,
		Seq:       seq,
	})

	return RecalcResult{
		Refund:            refund,
		TaxLiability:      liability,
		Diagnostics:       diagnostics,
		Applied:           applied,
		SkippedOverridden: skipped,
	}, nil
}

// EnqueueRecalc queues a return for recalculation by the Run loop.
// Safe from any goroutine. Returns false if the engine is shut down.
func (e *Engine) EnqueueRecalc(returnID string) bool {
	return e.queue.Enqueue(RecalcRequest{ReturnID: returnID})
}

// Run processes queued recalculation requests until ctx is canceled.
// Must be called from exactly one goroutine. Failed passes are logged
// and the loop continues; one bad return must not starve the rest.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if req, ok := e.queue.TryDequeue(); ok {
			if _, err := e.Recalculate(ctx, req.ReturnID); err != nil {
				e.log.Error("recalculation failed",
					"return_id", req.ReturnID,
					"error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
		}
	}
}

// QueueLen reports the number of pending recalculation requests.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// loadUnlocked loads a return and rejects locked ones.
func (e *Engine) loadUnlocked(ctx context.Context, returnID string) (store.Return, error) {
	ret, err := e.store.GetReturn(ctx, returnID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Return{}, newReturnNotFound(returnID)
		}
		return store.Return{}, fmt.Errorf("load return: %w", err)
	}
	if ret.IsLocked {
		return store.Return{}, newReturnLocked(returnID)
	}
	return ret, nil
}

// buildSnapshot converts stored fields into a calculation snapshot,
// revealing sealed values so the engine computes over plaintext.
func (e *Engine) buildSnapshot(fields []store.Field) (calc.Snapshot, error) {
	snap := make(calc.Snapshot)
	for _, f := range fields {
		value := f.Value
		if f.Sensitive {
			opened, err := e.sealer.Open(f.Value)
			if err != nil {
				return nil, fmt.Errorf("open field %s.%s: %w", f.FormID, f.FieldID, err)
			}
			value = opened
		}
		snap.Set(f.FormID, f.FieldID, value)
	}
	return snap, nil
}

// filterUpdates applies the override and existence rules to the
// calculation engine's proposed writes.
func (e *Engine) filterUpdates(returnID string, fields []store.Field, updates []calc.FieldUpdate) (writes []store.CalcFieldWrite, applied, skipped []string) {
	index := make(map[string]store.Field, len(fields))
	for _, f := range fields {
		index[fieldid.Join(f.FormID, f.FieldID)] = f
	}

	for _, u := range updates {
		key := fieldid.Join(u.FormID, u.FieldID)
		f, ok := index[key]
		if !ok {
			e.log.Debug("skipping write to missing field",
				"return_id", returnID,
				"field", key)
			continue
		}
		if f.Overridden {
			e.log.Debug("skipping write to overridden field",
				"return_id", returnID,
				"field", key)
			skipped = append(skipped, key)
			continue
		}
		writes = append(writes, store.CalcFieldWrite{
			FormID:  u.FormID,
			FieldID: u.FieldID,
			Value:   u.Value,
		})
		applied = append(applied, key)
	}
	return writes, applied, skipped
}

// recordAudit appends one hash-chained audit entry. Best-effort by
// contract: failures are logged, never propagated.
func (e *Engine) recordAudit(ctx context.Context, row store.AuditRow) {
	id, err := e.ids.NewID()
	if err != nil {
		e.log.Error("audit entry skipped", "return_id", row.ReturnID, "error", err)
		return
	}
	row.EntryID = id

	prevHash, err := e.store.LastAuditHash(ctx, row.ReturnID)
	if err != nil {
		e.log.Error("audit entry skipped", "return_id", row.ReturnID, "error", err)
		return
	}
	row.PrevHash = prevHash

	hash, err := audit.EntryHash(prevHash, audit.Entry{
		ReturnID:  row.ReturnID,
		FormID:    row.FormID,
		FieldID:   row.FieldID,
		UserID:    row.UserID,
		Action:    row.Action,
		Timestamp: row.Timestamp,
	})
	if err != nil {
		e.log.Error("audit entry skipped", "return_id", row.ReturnID, "error", err)
		return
	}
	row.Hash = hash

	if err := e.store.InsertAudit(ctx, row); err != nil {
		e.log.Error("audit entry skipped", "return_id", row.ReturnID, "error", err)
	}
}

// valueForKey finds the write destined for (form, field). Callers only
// ask for keys present in writes.
func valueForKey(writes []store.CalcFieldWrite, formID, fieldID string) fieldval.Value {
	for _, w := range writes {
		if w.FormID == formID && w.FieldID == fieldID {
			return w.Value
		}
	}
	return fieldval.Null{}
}

// viewsFromSnapshot builds diagnostic views over the post-write values.
// Field order follows the stored field order so output is stable.
func viewsFromSnapshot(fields []store.Field, snap calc.Snapshot) []diag.FieldView {
	views := make([]diag.FieldView, 0, len(fields))
	for _, f := range fields {
		views = append(views, diag.FieldView{
			FormID:  f.FormID,
			FieldID: f.FieldID,
			Value:   snap.Value(f.FormID, f.FieldID),
		})
	}
	return views
}
