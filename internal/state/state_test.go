package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"arch-setup/internal/steps"
)

func TestNewJournal(t *testing.T) {
	j := NewJournal("arch")
	_, err := uuid.Parse(j.RunID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, j.Status)
	require.Equal(t, "arch", j.Hostname)
	require.NotEqual(t, NewJournal("arch").RunID, j.RunID)
}

func TestJournal_RecordAndFinish(t *testing.T) {
	j := NewJournal("arch")
	j.Record([]steps.Outcome{
		{Name: "copy configuration", Status: steps.StatusOK, Duration: time.Second},
		{Name: "run post-install script", Status: steps.StatusFailed, Err: errors.New("exit 1")},
		{Name: "later", Status: steps.StatusSkipped},
	})
	j.Finish(errors.New("step 2 failed"))

	require.Len(t, j.Steps, 3)
	require.Equal(t, "exit 1", j.Steps[1].Error)
	require.Empty(t, j.Steps[0].Error)
	require.Equal(t, StatusFailed, j.Status)
	require.Equal(t, "step 2 failed", j.Error)
	require.False(t, j.FinishedAt.IsZero())

	ok := NewJournal("arch")
	ok.Finish(nil)
	require.Equal(t, StatusCompleted, ok.Status)
	require.Empty(t, ok.Error)
}

func TestSaveAndLoadJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnt", JournalPath)

	j := NewJournal("arch")
	j.Record([]steps.Outcome{{Name: "a", Status: steps.StatusOK, Duration: 1500 * time.Millisecond}})
	j.Finish(nil)
	require.NoError(t, SaveJournal(path, j))

	loaded := LoadJournal(path)
	require.Equal(t, j.RunID, loaded.RunID)
	require.Equal(t, j.Steps, loaded.Steps)
	require.Equal(t, StatusCompleted, loaded.Status)
	require.True(t, j.StartedAt.Equal(loaded.StartedAt))

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestLoadJournal_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	j := LoadJournal(filepath.Join(dir, "missing.json"))
	require.Empty(t, j.RunID)
	require.NotNil(t, j.Steps)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))
	j = LoadJournal(corrupt)
	require.Empty(t, j.RunID)
	require.NotNil(t, j.Steps)
}
