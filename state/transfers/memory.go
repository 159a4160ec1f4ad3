package transfers

import (
	"context"

	"github.com/sasha-s/go-deadlock"
)

// MemoryLedger is a Ledger held in process memory.
type MemoryLedger struct {
	mu    deadlock.Mutex
	items []Transfer
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) SaveUnsettled(ctx context.Context, t Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Origins = append([]string(nil), t.Origins...)
	for i := range m.items {
		if m.items[i].ChainTxID == t.ChainTxID {
			m.items[i] = t
			return nil
		}
	}
	m.items = append(m.items, t)
	return nil
}

func (m *MemoryLedger) ListUnsettled(ctx context.Context) ([]Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.items...), nil
}

func (m *MemoryLedger) DeleteUnsettled(ctx context.Context, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ChainTxID == txID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}
