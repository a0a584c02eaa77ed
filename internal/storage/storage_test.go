package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	require.NoError(t, WriteJSON(path, []sample{{Name: "Müller & Söhne", Count: 2}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Müller & Söhne")

	var got []sample
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, []sample{{Name: "Müller & Söhne", Count: 2}}, got)
}

func TestWriteJSONReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteJSON(path, sample{Name: "old"}))
	require.NoError(t, WriteJSON(path, sample{Name: "new"}))

	var got sample
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "new", got.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteJSONFailureKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteJSON(path, sample{Name: "old"}))

	err := WriteJSON(path, map[string]any{"bad": make(chan int)})
	require.Error(t, err)

	var got sample
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "old", got.Name)
}

func TestReadJSONMissing(t *testing.T) {
	var got sample
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &got)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestJSONLogConcurrentAppend(t *testing.T) {
	log := NewJSONLog(filepath.Join(t.TempDir(), "logs", "run.jsonl"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, log.Append(sample{Name: "entry", Count: i}))
		}(i)
	}
	wg.Wait()

	got, err := ReadJSONLines[sample](log.Path())
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestReadJSONLinesMissingFile(t *testing.T) {
	got, err := ReadJSONLines[sample](filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWorkspacePaths(t *testing.T) {
	ws := NewWorkspace("/data")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "consolidated", got: ws.ConsolidatedFile("philosophie"), expected: "/data/consolidated/philosophie.json"},
		{name: "batch", got: ws.BatchFile("philosophie", 2, 7), expected: "/data/batched/philosophie/philosophie_batch_2_of_7.json"},
		{name: "resolution", got: ws.Resolution(), expected: "/data/resolution/discrepancies_processed.json"},
		{name: "dedup batch", got: ws.DedupBatchFile(4), expected: "/data/people/batches/people_batch_004.json"},
		{name: "quarantine", got: ws.QuarantineLog(), expected: "/data/logs/quarantine.jsonl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestJSONFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0644))
	}

	files, err := JSONFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, files)

	_, err = JSONFiles(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrMissingInput)
}
