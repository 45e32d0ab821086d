package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestCloseWithoutItemsLeavesValidArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(dir, "nasga_games_2024-01-01_00-00-00.json", 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	paths := w.Paths()
	require.Equal(t, []string{filepath.Join(dir, "nasga_games_2024-01-01_00-00-00.json")}, paths)

	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(readFile(t, paths[0]), &items))
	assert.Empty(t, items)
}

func TestWriteAfterCloseFails(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), "games.json", 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.WriteItem(pair{}), ErrClosed)
}

func TestRotationRespectsLineLimit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(dir, "heavyathlete_games.json", 10)
	require.NoError(t, err)
	for i := range 5 {
		require.NoError(t, w.WriteItem(pair{A: i, B: i * 2}))
	}
	require.NoError(t, w.Close())

	paths := w.Paths()
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "heavyathlete_games_part_1.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "heavyathlete_games_part_3.json"), paths[2])

	var all []pair
	for _, p := range paths {
		data := readFile(t, p)
		assert.LessOrEqual(t, bytes.Count(data, []byte{'\n'}), 10, p)
		var shard []pair
		require.NoError(t, json.Unmarshal(data, &shard), p)
		all = append(all, shard...)
	}
	require.Len(t, all, 5)
	for i, item := range all {
		assert.Equal(t, pair{A: i, B: i * 2}, item)
	}
}

func TestOversizedItemIsNeverSplit(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), "big.json", 3)
	require.NoError(t, err)
	require.NoError(t, w.WriteItem(pair{A: 1, B: 1}))
	require.NoError(t, w.WriteItem(pair{A: 2, B: 2}))
	require.NoError(t, w.Close())

	paths := w.Paths()
	require.Len(t, paths, 2)
	for i, p := range paths {
		var shard []pair
		require.NoError(t, json.Unmarshal(readFile(t, p), &shard))
		require.Len(t, shard, 1)
		assert.Equal(t, i+1, shard[0].A)
	}
}

func TestItemsAreIndentedAndUnescaped(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), "games.json", 0)
	require.NoError(t, err)
	require.NoError(t, w.WriteItem(map[string]string{"name": "Men A & B"}))
	require.NoError(t, w.Close())

	assert.Equal(t, "[\n{\n  \"name\": \"Men A & B\"\n}\n]\n", string(readFile(t, w.Paths()[0])))
}

func TestNewRequiresBaseName(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir(), " ", 0)
	require.Error(t, err)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
