// Package idempotency tracks which event IDs have already been handled so
// broker redeliveries become no-ops instead of duplicated side effects.
package idempotency

import (
	"context"
	"sync"
)

// Ledger records processed event IDs.
//
// Claim atomically marks id as processed and reports whether this caller won
// the claim; a second Claim for the same id returns false. Forget releases a
// claim so a failed delivery can be retried. Processed is a read-only probe.
type Ledger interface {
	Processed(ctx context.Context, id string) (bool, error)
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Memory is an in-process Ledger. Entries live until the process exits, so
// it only deduplicates within a single instance. Safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Processed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[id]
	return ok, nil
}

func (m *Memory) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = struct{}{}
	return true, nil
}

func (m *Memory) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}

// Len reports the number of tracked IDs. Only for tests.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
