package eventlog

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"
)

// MemoryLog is an in-memory, thread-safe Log. It does not survive restarts.
type MemoryLog struct {
	mu      sync.RWMutex
	records []*Record
	now     func() time.Time
}

// NewMemory creates a MemoryLog holding only the genesis record.
func NewMemory() *MemoryLog {
	l := &MemoryLog{now: now}
	l.records = append(l.records, genesis(l.now()))
	return l
}

// now truncates to microseconds, the resolution PostgreSQL stores, so a
// record hashes identically in either backend.
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, kind, subject, actor string, payload any) (*Record, error) {
	b, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r := link(l.records[len(l.records)-1], l.now(), kind, subject, actor, b)
	l.records = append(l.records, r)
	return copyRecord(r), nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, seq int) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq < 0 || seq >= len(l.records) {
		return nil, fmt.Errorf("sequence %d: %w", seq, ErrNotFound)
	}
	return copyRecord(l.records[seq]), nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// All implements Log.
func (l *MemoryLog) All(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for seq := 1; ; seq++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			l.mu.RLock()
			if seq >= len(l.records) {
				l.mu.RUnlock()
				return
			}
			r := copyRecord(l.records[seq])
			l.mu.RUnlock()
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Record
	for _, curr := range l.records {
		if err := check(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[len(l.records)-1].Hash, nil
}

func copyRecord(r *Record) *Record {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}
