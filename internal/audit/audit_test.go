package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain links n entries through EntryHash.
func buildChain(t *testing.T, n int) []Entry {
	t.Helper()
	entries := make([]Entry, 0, n)
	prev := ""
	for i := 0; i < n; i++ {
		e := Entry{
			ID:        "id-000001",
			ReturnID:  "ret-1",
			FormID:    "W2",
			FieldID:   "wages",
			UserID:    "preparer-1",
			Action:    "update",
			PrevValue: "null",
			NewValue:  "50000",
			Timestamp: int64(1700000000 + i),
			Seq:       int64(i + 1),
			PrevHash:  prev,
		}
		h, err := EntryHash(prev, e)
		require.NoError(t, err)
		e.Hash = h
		prev = h
		entries = append(entries, e)
	}
	return entries
}

func TestEntryHash_Deterministic(t *testing.T) {
	e := Entry{ReturnID: "ret-1", FormID: "W2", FieldID: "wages", UserID: "u", Action: "update", Timestamp: 1700000000}
	first, err := EntryHash("", e)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	again, err := EntryHash("", e)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestEntryHash_SensitiveToEveryField(t *testing.T) {
	base := Entry{ReturnID: "ret-1", FormID: "W2", FieldID: "wages", UserID: "u", Action: "update", Timestamp: 1700000000}
	baseHash, err := EntryHash("", base)
	require.NoError(t, err)

	mutations := []func(e *Entry){
		func(e *Entry) { e.ReturnID = "ret-2" },
		func(e *Entry) { e.FormID = "SchC" },
		func(e *Entry) { e.FieldID = "withholding" },
		func(e *Entry) { e.UserID = "other" },
		func(e *Entry) { e.Action = "recalculate" },
		func(e *Entry) { e.Timestamp = 1700000001 },
	}
	for i, mutate := range mutations {
		e := base
		mutate(&e)
		h, err := EntryHash("", e)
		require.NoError(t, err)
		assert.NotEqual(t, baseHash, h, "mutation %d", i)
	}

	h, err := EntryHash("somehash", base)
	require.NoError(t, err)
	assert.NotEqual(t, baseHash, h, "prev hash must be covered")
}

func TestVerifyChain_Empty(t *testing.T) {
	v := VerifyChain(nil)
	assert.True(t, v.Valid)
	assert.Equal(t, -1, v.InvalidIndex)
}

func TestVerifyChain_Intact(t *testing.T) {
	v := VerifyChain(buildChain(t, 5))
	assert.True(t, v.Valid)
	assert.Equal(t, -1, v.InvalidIndex)
	assert.Equal(t, "chain intact", v.Message)
}

func TestVerifyChain_TamperedMiddle(t *testing.T) {
	entries := buildChain(t, 3)
	entries[1].UserID = "attacker"

	v := VerifyChain(entries)
	require.False(t, v.Valid)
	assert.Equal(t, 1, v.InvalidIndex)
	assert.Contains(t, v.Message, "chain broken at entry 2")
}

func TestVerifyChain_PrevHashLinkBroken(t *testing.T) {
	entries := buildChain(t, 3)
	entries[2].PrevHash = "0000"

	v := VerifyChain(entries)
	require.False(t, v.Valid)
	assert.Equal(t, 2, v.InvalidIndex)
	assert.Contains(t, v.Message, "previous-hash link")
}

func TestVerifyChain_FirstEntryMustLinkFromEmpty(t *testing.T) {
	entries := buildChain(t, 1)
	entries[0].PrevHash = "deadbeef"

	v := VerifyChain(entries)
	require.False(t, v.Valid)
	assert.Equal(t, 0, v.InvalidIndex)
	assert.Contains(t, v.Message, "chain broken at entry 1")
}

func TestVerifyChain_StoredHashOverwritten(t *testing.T) {
	entries := buildChain(t, 2)
	entries[0].Hash = "ffff"

	v := VerifyChain(entries)
	require.False(t, v.Valid)
	assert.Equal(t, 0, v.InvalidIndex)
	assert.Contains(t, v.Message, "stored hash does not match")
}
