package db

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) DB {
	t.Helper()

	store, err := New(DBOpts{
		Logg:   slog.New(slog.DiscardHandler),
		DBType: DBTypeBolt,
		Path:   filepath.Join(t.TempDir(), "nested", "ayur.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoundsDefaultToZero(t *testing.T) {
	store := openTestDB(t)

	lower, err := store.GetLowerBound()
	require.NoError(t, err)
	assert.Zero(t, lower)

	upper, err := store.GetUpperBound()
	require.NoError(t, err)
	assert.Zero(t, upper)

	require.NoError(t, store.SetLowerBound(100))
	require.NoError(t, store.SetUpperBound(250))

	lower, err = store.GetLowerBound()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), lower)

	upper, err = store.GetUpperBound()
	require.NoError(t, err)
	assert.Equal(t, uint64(250), upper)
}

func TestMissingValuesBitSet(t *testing.T) {
	store := openTestDB(t)

	for _, b := range []uint64{10, 11, 13, 16} {
		require.NoError(t, store.SetValue(b))
	}
	require.NoError(t, store.SetLowerBound(10))
	require.NoError(t, store.SetUpperBound(16))

	missing, err := store.GetMissingValuesBitSet(10, 15)
	require.NoError(t, err)

	var got []uint64
	for i, ok := missing.NextSet(0); ok; i, ok = missing.NextSet(i + 1) {
		got = append(got, uint64(i))
	}
	assert.Equal(t, []uint64{12, 14, 15}, got)

	empty, err := store.GetMissingValuesBitSet(20, 10)
	require.NoError(t, err)
	assert.Zero(t, empty.Count())
}

func TestCleanup(t *testing.T) {
	store := openTestDB(t)

	for b := uint64(1); b <= 10; b++ {
		require.NoError(t, store.SetValue(b))
	}
	require.NoError(t, store.Cleanup())

	require.NoError(t, store.SetLowerBound(6))
	require.NoError(t, store.SetUpperBound(10))
	require.NoError(t, store.Cleanup())

	missing, err := store.GetMissingValuesBitSet(1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint(5), missing.Count())
	for b := uint(1); b <= 5; b++ {
		assert.True(t, missing.Test(b), "block %d should be gone", b)
	}

	upper, err := store.GetUpperBound()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), upper)
}

func TestMappings(t *testing.T) {
	store := openTestDB(t)

	_, ok, err := store.GetMapping("0xabc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutMapping("0xabc", "QmFirst"))
	require.NoError(t, store.PutMapping("0xabc", "QmSecond"))

	v, ok, err := store.GetMapping("0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "QmSecond", v)

	assert.Error(t, store.PutMapping("", "QmNothing"))
}

func TestReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ayur.db")

	first, err := NewBoltDB(path)
	require.NoError(t, err)
	require.NoError(t, first.PutMapping("0xabc", "QmPhoto"))
	require.NoError(t, first.SetUpperBound(42))
	require.NoError(t, first.Close())

	second, err := NewBoltDB(path)
	require.NoError(t, err)
	defer second.Close()

	v, ok, err := second.GetMapping("0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "QmPhoto", v)

	upper, err := second.GetUpperBound()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), upper)
}

func TestBatchMetaMerges(t *testing.T) {
	store := openTestDB(t)

	_, ok, err := store.GetBatchMeta("AYR-001")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.MergeBatchMeta("AYR-001", map[string]any{"grade": "A", "note": "dried"})
	require.NoError(t, err)

	merged, err := store.MergeBatchMeta("AYR-001", map[string]any{"note": "sun dried"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"grade": "A", "note": "sun dried"}, merged)

	meta, ok, err := store.GetBatchMeta("AYR-001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, merged, meta)

	_, err = store.MergeBatchMeta("", map[string]any{"grade": "B"})
	assert.Error(t, err)
}
