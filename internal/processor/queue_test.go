package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

func TestQueueCollapsesAndClearsSnapshotOnly(t *testing.T) {
	q := NewQueue()
	q.Add("R1", models.RecordRequisition)
	q.Add("R1", models.RecordRequisition)
	q.Add("T1", models.RecordTransaction)
	assert.Equal(t, 2, q.Len())

	snap := q.Snapshot()
	q.Add("T2", models.RecordTransaction)
	q.Clear(snap)

	assert.Equal(t, map[string]models.RecordType{"T2": models.RecordTransaction}, q.Snapshot().Entries)
	assert.Equal(t, []string{"R1", "T1"}, sortedIDs(snap.Entries))
}

func TestQueueKeepsIDsReaddedAfterSnapshot(t *testing.T) {
	q := NewQueue()
	q.Add("R1", models.RecordRequisition)
	q.Add("T1", models.RecordTransaction)

	snap := q.Snapshot()
	q.Add("R1", models.RecordRequisition)
	q.Clear(snap)

	assert.Equal(t, map[string]models.RecordType{"R1": models.RecordRequisition}, q.Snapshot().Entries)

	// a later snapshot covers the re-added entry
	q.Clear(q.Snapshot())
	assert.Zero(t, q.Len())
}
