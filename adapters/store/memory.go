package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"powersvc/domain/core"
	"powersvc/domain/run"
)

// DefaultMemoryCapacity bounds the in-memory ledger
const DefaultMemoryCapacity = 1000

// InMemoryRunLedger implements ports.RunLedger with in-memory storage. The
// oldest records are evicted once capacity is reached.
type InMemoryRunLedger struct {
	capacity int
	records  map[core.RequestID]run.Record
	order    []core.RequestID
	mu       sync.RWMutex
}

// NewInMemoryRunLedger creates a ledger holding at most capacity records
func NewInMemoryRunLedger(capacity int) *InMemoryRunLedger {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryRunLedger{
		capacity: capacity,
		records:  make(map[core.RequestID]run.Record),
	}
}

func (l *InMemoryRunLedger) Record(ctx context.Context, rec *run.Record) error {
	if rec == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[rec.ID]; !exists {
		l.order = append(l.order, rec.ID)
	}
	l.records[rec.ID] = *rec

	for len(l.order) > l.capacity {
		delete(l.records, l.order[0])
		l.order = l.order[1:]
	}
	return nil
}

func (l *InMemoryRunLedger) Get(ctx context.Context, id core.RequestID) (*run.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, exists := l.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return &rec, nil
}

func (l *InMemoryRunLedger) Recent(ctx context.Context, limit int) ([]*run.Record, error) {
	l.mu.RLock()
	out := make([]*run.Record, 0, len(l.records))
	for _, rec := range l.records {
		rec := rec
		out = append(out, &rec)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
