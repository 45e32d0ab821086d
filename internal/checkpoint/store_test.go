package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newFileStore(t *testing.T, path string) (*Store, *observer.ObservedLogs) {
	t.Helper()
	backend, err := NewFileBackend(path)
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	return New(backend, zap.New(core)), logs
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	store, _ := newFileStore(t, filepath.Join(t.TempDir(), "checkpoint.json"))
	state := store.Load(context.Background())
	assert.Empty(t, state)
	assert.Equal(t, 1999, store.GetInt("heavyathlete_year", 1999))
}

func TestLoadCorruptFileWarnsAndStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"heavyathlete_year": 20`), 0o644))

	store, logs := newFileStore(t, path)
	state := store.Load(context.Background())

	assert.Empty(t, state)
	assert.Equal(t, 1, logs.FilterMessage("checkpoint corrupt, starting fresh").Len())
}

func TestSaveRewritesWholeDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	ctx := context.Background()

	store, _ := newFileStore(t, path)
	store.Load(ctx)
	require.NoError(t, store.Save(ctx, "scottishscores_year", 2004))
	require.NoError(t, store.Update(ctx, map[string]any{
		"scottishscores_year":        2005,
		"scottishscores_athlete_idx": 150,
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"scottishscores_year":2005,"scottishscores_athlete_idx":150}`, string(data))

	reopened, _ := newFileStore(t, path)
	reopened.Load(ctx)
	assert.Equal(t, 2005, reopened.GetInt("scottishscores_year", 0))
	assert.Equal(t, 150, reopened.GetInt("scottishscores_athlete_idx", 0))
	assert.Equal(t, "fallback", reopened.Get("missing", "fallback"))
}

func TestClearRemovesFileAndState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	ctx := context.Background()
	store, _ := newFileStore(t, path)
	require.NoError(t, store.Save(ctx, "nasga_year", 2010))

	require.NoError(t, store.Clear(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, store.Snapshot())
	require.NoError(t, store.Clear(ctx), "clearing twice is harmless")
}

func TestGetIntCoercions(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{}, nil)
	require.NoError(t, store.Update(context.Background(), map[string]any{
		"int":    7,
		"float":  8.0,
		"string": "9",
		"bad":    "x",
	}))

	assert.Equal(t, 7, store.GetInt("int", 0))
	assert.Equal(t, 8, store.GetInt("float", 0))
	assert.Equal(t, 9, store.GetInt("string", 0))
	assert.Equal(t, -1, store.GetInt("bad", -1))
}

func TestSaveFailureIsReturned(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{writeErr: errors.New("disk full")}, nil)
	err := store.Save(context.Background(), "k", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, store.GetInt("k", 0), "in-memory state still advances")
}

func TestLoadReadErrorStartsEmpty(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	store := New(&memoryBackend{readErr: errors.New("permission denied")}, zap.New(core))
	assert.Empty(t, store.Load(context.Background()))
	assert.Equal(t, 1, logs.Len())
}

type memoryBackend struct {
	data     []byte
	readErr  error
	writeErr error
}

func (m *memoryBackend) Read(context.Context) ([]byte, error) {
	return m.data, m.readErr
}

func (m *memoryBackend) Write(_ context.Context, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memoryBackend) Delete(context.Context) error {
	m.data = nil
	return nil
}
