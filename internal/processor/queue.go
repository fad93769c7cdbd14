package processor

import (
	"sort"
	"sync"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

// Queue collects records touched by sync since the last successful run.
// Keyed by record id, so repeated notifications for one record collapse
type Queue struct {
	mu      sync.Mutex
	entries map[string]queued
	seq     uint64
}

type queued struct {
	rt  models.RecordType
	seq uint64
}

// Snapshot is a point-in-time copy of the queue
type Snapshot struct {
	Entries map[string]models.RecordType
	mark    uint64
}

func NewQueue() *Queue {
	return &Queue{entries: make(map[string]queued)}
}

// Add queues recordID. Re-adding an id stamps it newer than any earlier snapshot
func (q *Queue) Add(recordID string, rt models.RecordType) {
	q.mu.Lock()
	q.seq++
	q.entries[recordID] = queued{rt: rt, seq: q.seq}
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]models.RecordType, len(q.entries))
	for id, e := range q.entries {
		out[id] = e.rt
	}
	return Snapshot{Entries: out, mark: q.seq}
}

// Clear removes the ids of a snapshot that has been fully processed.
// An id added again after the snapshot was taken is kept
func (q *Queue) Clear(snap Snapshot) {
	q.mu.Lock()
	for id := range snap.Entries {
		if e, ok := q.entries[id]; ok && e.seq <= snap.mark {
			delete(q.entries, id)
		}
	}
	q.mu.Unlock()
}

func sortedIDs(m map[string]models.RecordType) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
