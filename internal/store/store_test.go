package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxline/taxline/internal/diag"
	"github.com/taxline/taxline/internal/fieldval"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedReturn(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateReturn(context.Background(), Return{
		ID:         id,
		TaxpayerID: "tp-1",
		Year:       2024,
		UpdatedAt:  1700000000,
	}))
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	seedReturn(t, s1, "ret-1")
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	r, err := s2.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, "tp-1", r.TaxpayerID)
}

func TestOpen_SchemaVersion(t *testing.T) {
	s := openTestStore(t)
	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	seedReturn(t, s1, "ret-1")

	// Rewind to a pre-migration file: drop the backfilled index and
	// reset the version stamp.
	_, err = s1.db.Exec("DROP INDEX idx_fields_return")
	require.NoError(t, err)
	_, err = s1.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	require.NoError(t, s2.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var count int
	require.NoError(t, s2.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_fields_return'",
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateReturn_Defaults(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	r, err := s.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", r.Refund)
	assert.Equal(t, "0.00", r.TaxLiability)
	assert.NotNil(t, r.Diagnostics)
	assert.Empty(t, r.Diagnostics)
	assert.False(t, r.IsLocked)
	assert.Zero(t, r.Seq)
}

func TestCreateReturn_DuplicateIgnored(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	err := s.CreateReturn(context.Background(), Return{
		ID: "ret-1", TaxpayerID: "tp-other", Year: 2025,
	})
	require.NoError(t, err)

	r, err := s.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, "tp-1", r.TaxpayerID, "first write wins")
}

func TestGetReturn_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetReturn(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestField_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	f := Field{
		ReturnID:       "ret-1",
		FormID:         "W2",
		FieldID:        "wages",
		Value:          fieldval.NumberFromInt64(50000),
		Overridden:     true,
		LastModifiedBy: "preparer-1",
		UpdatedSeq:     3,
		UpdatedAt:      1700000000,
	}
	require.NoError(t, s.CreateField(context.Background(), f))

	got, err := s.GetField(context.Background(), "ret-1", "W2", "wages")
	require.NoError(t, err)
	assert.Equal(t, "W2", got.FormID)
	assert.True(t, got.Overridden)
	assert.False(t, got.Calculated)
	assert.Equal(t, "preparer-1", got.LastModifiedBy)
	assert.Equal(t, int64(3), got.UpdatedSeq)

	raw, err := fieldval.CanonicalString(got.Value)
	require.NoError(t, err)
	assert.Equal(t, "50000", raw)
}

func TestGetField_NotFound(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")
	_, err := s.GetField(context.Background(), "ret-1", "W2", "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestGetFields_DeterministicOrder(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	keys := [][2]string{
		{"W2", "wages"}, {"1040", "refund"}, {"SchC", "netProfit"},
		{"1040", "agi"}, {"W2", "ssn"},
	}
	for _, k := range keys {
		require.NoError(t, s.CreateField(context.Background(), Field{
			ReturnID: "ret-1", FormID: k[0], FieldID: k[1], Value: fieldval.Null{},
		}))
	}

	fields, err := s.GetFields(context.Background(), "ret-1")
	require.NoError(t, err)
	require.Len(t, fields, 5)

	var got [][2]string
	for _, f := range fields {
		got = append(got, [2]string{f.FormID, f.FieldID})
	}
	assert.Equal(t, [][2]string{
		{"1040", "agi"}, {"1040", "refund"},
		{"SchC", "netProfit"},
		{"W2", "ssn"}, {"W2", "wages"},
	}, got)
}

func TestGetFields_EmptyNotNil(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	fields, err := s.GetFields(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.NotNil(t, fields)
	assert.Empty(t, fields)
}

func TestPatchField_PartialUpdate(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")
	require.NoError(t, s.CreateField(context.Background(), Field{
		ReturnID: "ret-1", FormID: "W2", FieldID: "wages",
		Value: fieldval.NumberFromInt64(100), Estimated: true,
	}))

	overridden := true
	require.NoError(t, s.PatchField(context.Background(), "ret-1", "W2", "wages", FieldPatch{
		Value:      fieldval.NumberFromInt64(200),
		Overridden: &overridden,
	}))

	got, err := s.GetField(context.Background(), "ret-1", "W2", "wages")
	require.NoError(t, err)
	raw, err := fieldval.CanonicalString(got.Value)
	require.NoError(t, err)
	assert.Equal(t, "200", raw)
	assert.True(t, got.Overridden)
	assert.True(t, got.Estimated, "untouched flag survives the patch")
}

func TestPatchField_EmptyPatchNoOp(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")
	assert.NoError(t, s.PatchField(context.Background(), "ret-1", "W2", "wages", FieldPatch{}))
}

func TestPatchField_MissingFieldSilent(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	calculated := true
	err := s.PatchField(context.Background(), "ret-1", "W2", "ghost", FieldPatch{Calculated: &calculated})
	assert.NoError(t, err, "writes never create fields")

	_, err = s.GetField(context.Background(), "ret-1", "W2", "ghost")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSetLocked(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	require.NoError(t, s.SetLocked(context.Background(), "ret-1", true))
	r, err := s.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.True(t, r.IsLocked)

	require.NoError(t, s.SetLocked(context.Background(), "ret-1", false))
	r, err = s.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.False(t, r.IsLocked)
}

func TestNextSeq_Monotonic(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")
	seedReturn(t, s, "ret-2")

	for want := int64(1); want <= 3; want++ {
		seq, err := s.NextSeq(context.Background(), "ret-1")
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// Counters are per return.
	seq, err := s.NextSeq(context.Background(), "ret-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestNextSeq_MissingReturn(t *testing.T) {
	s := openTestStore(t)
	_, err := s.NextSeq(context.Background(), "missing")
	assert.Error(t, err)
}

func TestApplyRecalc_Atomic(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")
	for _, id := range []string{"totalTax", "refund"} {
		require.NoError(t, s.CreateField(context.Background(), Field{
			ReturnID: "ret-1", FormID: "1040", FieldID: id, Value: fieldval.NumberFromInt64(0),
		}))
	}

	diags := []diag.Diagnostic{{
		FormID: "1040", FieldID: "1040.filingStatus",
		Severity: diag.SeverityError, Message: "Filing status is required",
	}}
	err := s.ApplyRecalc(context.Background(), "ret-1",
		[]CalcFieldWrite{
			{FormID: "1040", FieldID: "totalTax", Value: fieldval.NumberFromInt64(1530)},
			{FormID: "1040", FieldID: "refund", Value: fieldval.NumberFromInt64(0)},
		},
		ReturnPatch{
			Refund: "0.00", TaxLiability: "1530.00",
			Diagnostics: diags, Seq: 7, UpdatedAt: 1700000100,
		},
	)
	require.NoError(t, err)

	r, err := s.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, "1530.00", r.TaxLiability)
	assert.Equal(t, "0.00", r.Refund)
	assert.Equal(t, int64(7), r.Seq)
	assert.Equal(t, diags, r.Diagnostics)

	f, err := s.GetField(context.Background(), "ret-1", "1040", "totalTax")
	require.NoError(t, err)
	assert.True(t, f.Calculated)
	assert.Equal(t, int64(7), f.UpdatedSeq)
	raw, err := fieldval.CanonicalString(f.Value)
	require.NoError(t, err)
	assert.Equal(t, "1530", raw)
}

func TestApplyRecalc_MissingFieldSkipped(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	err := s.ApplyRecalc(context.Background(), "ret-1",
		[]CalcFieldWrite{{FormID: "1040", FieldID: "ghost", Value: fieldval.NumberFromInt64(1)}},
		ReturnPatch{Refund: "0.00", TaxLiability: "0.00", Seq: 1, UpdatedAt: 1700000000},
	)
	require.NoError(t, err)

	_, err = s.GetField(context.Background(), "ret-1", "1040", "ghost")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	r, err := s.GetReturn(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Seq, "aggregates still land")
}

func TestAudit_InsertListAndLastHash(t *testing.T) {
	s := openTestStore(t)
	seedReturn(t, s, "ret-1")

	hash, err := s.LastAuditHash(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, "", hash)

	entries, err := s.ListAudit(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	rows := []AuditRow{
		{EntryID: "e1", ReturnID: "ret-1", FormID: "W2", FieldID: "wages",
			UserID: "u", Action: "update", PrevValue: "null", NewValue: "100",
			Timestamp: 1700000000, Seq: 1, PrevHash: "", Hash: "aaa"},
		{EntryID: "e2", ReturnID: "ret-1", FormID: "W2", FieldID: "wages",
			UserID: "u", Action: "update", PrevValue: "100", NewValue: "200",
			Timestamp: 1700000001, Seq: 2, PrevHash: "aaa", Hash: "bbb"},
	}
	for _, a := range rows {
		require.NoError(t, s.InsertAudit(context.Background(), a))
	}

	entries, err = s.ListAudit(context.Background(), "ret-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].EntryID)
	assert.Equal(t, "e2", entries[1].EntryID)

	hash, err = s.LastAuditHash(context.Background(), "ret-1")
	require.NoError(t, err)
	assert.Equal(t, "bbb", hash)
}

func TestAudit_ForeignKeyEnforced(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertAudit(context.Background(), AuditRow{
		EntryID: "e1", ReturnID: "no-such-return", Action: "update", Hash: "x",
	})
	assert.Error(t, err, "audit entries require an existing return")
}
