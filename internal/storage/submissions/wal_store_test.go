package submissions

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalLifecycle(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Prepare("swap_buy", "CPOOL", "GBUYER")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Empty(t, rec.Hash)

	require.NoError(t, j.MarkSubmitted(rec, "hash-1"))
	assert.Equal(t, StatusSubmitted, rec.Status)
	assert.Equal(t, "hash-1", rec.Hash)

	require.NoError(t, j.MarkConfirmed(rec))
	assert.Equal(t, StatusConfirmed, rec.Status)

	records := j.Records()
	require.Len(t, records, 1)
	assert.Equal(t, StatusConfirmed, records[0].Status)
	assert.Equal(t, "hash-1", records[0].Hash)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := NewJournal(dir)
	require.NoError(t, err)

	confirmed, err := j.Prepare("swap_buy", "CPOOL", "GBUYER")
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(confirmed, "hash-confirmed"))
	require.NoError(t, j.MarkConfirmed(confirmed))

	inflight, err := j.Prepare("swap_sell", "CPOOL", "GSELLER")
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(inflight, "hash-inflight"))

	failed, err := j.Prepare("update", "CORACLE", "GUPDATER")
	require.NoError(t, err)
	require.NoError(t, j.MarkFailed(failed, errors.New("simulation failed")))

	require.NoError(t, j.Close())

	// a restarted process sees the final status of every record exactly once
	reopened, err := NewJournal(dir)
	require.NoError(t, err)
	defer reopened.Close()

	records := reopened.Records()
	require.Len(t, records, 3)

	byHash := make(map[string]Record)
	byID := make(map[string]Record)
	for _, rec := range records {
		byHash[rec.Hash] = rec
		byID[rec.ID] = rec
	}
	assert.Equal(t, StatusConfirmed, byHash["hash-confirmed"].Status)
	assert.Equal(t, StatusSubmitted, byHash["hash-inflight"].Status)
	assert.Equal(t, StatusFailed, byID[failed.ID].Status)
	assert.Contains(t, byID[failed.ID].Error, "simulation failed")
}

func TestUnresolved(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	// no hash yet: nothing to re-query
	_, err = j.Prepare("swap_buy", "CPOOL", "GBUYER")
	require.NoError(t, err)

	submitted, err := j.Prepare("swap_sell", "CPOOL", "GSELLER")
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(submitted, "hash-submitted"))

	timedOut, err := j.Prepare("add_liquidity", "CPOOL", "GPROV")
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(timedOut, "hash-timed-out"))
	require.NoError(t, j.MarkTimedOut(timedOut))

	done, err := j.Prepare("update", "CORACLE", "GUPDATER")
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(done, "hash-done"))
	require.NoError(t, j.MarkConfirmed(done))

	unresolved := j.Unresolved()
	require.Len(t, unresolved, 2)
	hashes := []string{unresolved[0].Hash, unresolved[1].Hash}
	assert.ElementsMatch(t, []string{"hash-submitted", "hash-timed-out"}, hashes)
}

func TestMarkTimedOutKeepsHash(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Prepare("swap_buy", "CPOOL", "GBUYER")
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(rec, "hash-1"))
	require.NoError(t, j.MarkTimedOut(rec))

	assert.Equal(t, StatusTimedOut, rec.Status)
	assert.Equal(t, "hash-1", rec.Hash, "the hash is the only recovery handle")
}

func TestUpdateNilRecordIsNoop(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	assert.NoError(t, j.MarkConfirmed(nil))
	assert.NoError(t, j.MarkFailed(nil, errors.New("ignored")))
	assert.Empty(t, j.Records())
}
