package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jacentio/skutrail/history"
)

// HistoryStore keeps history records in insertion order.
type HistoryStore struct {
	mu      sync.RWMutex
	records []history.Record
}

// NewHistoryStore returns an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Append implements history.Store.
func (h *HistoryStore) Append(_ context.Context, r *history.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, cloneRecord(*r))
	return nil
}

// List implements history.Store.
func (h *HistoryStore) List(_ context.Context, f history.Filter) ([]history.Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := f.Apply(h.records)
	for i := range out {
		out[i] = cloneRecord(out[i])
	}
	return out, nil
}

// cloneRecord copies the map and pointer fields so stored records cannot be
// changed through a caller's copy.
func cloneRecord(r history.Record) history.Record {
	r.Metadata = maps.Clone(r.Metadata)
	for _, p := range []**string{&r.OldSku, &r.NewSku, &r.ActorID, &r.ActorType, &r.Reason, &r.IPAddress, &r.UserAgent} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return r
}

// DeleteBefore implements history.Store.
func (h *HistoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.records[:0]
	removed := 0
	for _, r := range h.records {
		if r.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	h.records = kept
	return removed, nil
}

// CountBefore implements history.Store.
func (h *HistoryStore) CountBefore(_ context.Context, cutoff time.Time) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, r := range h.records {
		if r.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
