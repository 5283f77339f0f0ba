package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runtimeviewer/internal/models"
)

func TestRoundStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rounds.json")
	store, err := NewRoundStorage(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoDataset)

	rounds := []models.Round{{
		RoundID:   7,
		Timestamp: models.NewTimestamp(time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)),
		Revision:  "abc",
		Server:    "basil",
		Runtimes: []models.RuntimeBatch{{
			Count: 2, Exception: "E", ProcPath: "/p", SourceFile: "f.dm", Line: 3,
			BestGuessFilenames: models.Definitely("code/f.dm"),
		}},
	}}
	require.NoError(t, store.Replace(rounds))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 7, loaded[0].RoundID)
	assert.True(t, loaded[0].Timestamp.Equal(rounds[0].Timestamp.Time))
	assert.Equal(t, []string{"code/f.dm"}, loaded[0].Runtimes[0].BestGuessFilenames.Paths())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestRoundStorageMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rounds.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewRoundStorage(path)
	require.NoError(t, err)
	_, err = store.Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDataset)
}

func TestRoundStorageEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rounds.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	store, err := NewRoundStorage(path)
	require.NoError(t, err)
	rounds, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, rounds)
}
