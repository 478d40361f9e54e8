package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndCount(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.RecordFill("w1", "buy", 0.98, 47.6))
	require.NoError(t, j.RecordFill("w1", "sell", 1.02, 47.6))
	require.NoError(t, j.RecordCenterShift("w1", 1.0, 1.05))
	require.NoError(t, j.RecordPass("w1", 3, 1.05, 0.04))

	var fills, shifts, passes int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM fills WHERE worker = ?`, "w1").Scan(&fills))
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM center_shifts`).Scan(&shifts))
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&passes))
	assert.Equal(t, 2, fills)
	assert.Equal(t, 1, shifts)
	assert.Equal(t, 1, passes)
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.RecordFill("w", "buy", 1, 1))
	assert.NoError(t, j.RecordCenterShift("w", 1, 2))
	assert.NoError(t, j.RecordPass("w", 0, 1, 0))
	assert.NoError(t, j.Close())
}

func TestOpenIsIdempotentOnSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.RecordPass("w", 1, 1, 0.04))
	require.NoError(t, j1.Close())

	// reopening migrates against existing tables without error
	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()
	var passes int
	require.NoError(t, j2.db.QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&passes))
	assert.Equal(t, 1, passes)
}
