package accounts

import (
	"context"
	"fmt"

	"github.com/sasha-s/go-deadlock"
)

// MemoryStore is a Store held in process memory. Records are copied on the way in and out
// so callers never share state with the store.
type MemoryStore struct {
	mu       deadlock.Mutex
	accounts []*Account
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) FindAccountByHandle(ctx context.Context, handle string) (*Account, error) {
	return m.find(func(a *Account) bool { return SameHandle(a.Handle, handle) && !a.IsPlaceholder() })
}

func (m *MemoryStore) FindPlaceholderByHandle(ctx context.Context, handle string) (*Account, error) {
	return m.find(func(a *Account) bool { return SameHandle(a.Handle, handle) && a.IsPlaceholder() })
}

func (m *MemoryStore) FindAccountByAddress(ctx context.Context, address string) (*Account, error) {
	if address == "" {
		return nil, ErrNotFound
	}
	return m.find(func(a *Account) bool { return a.PublicAddress == address })
}

func (m *MemoryStore) find(match func(*Account) bool) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.ID == a.ID {
			continue
		}
		if SameHandle(existing.Handle, a.Handle) {
			return fmt.Errorf("%w: handle %s", ErrUniqueViolation, a.Handle)
		}
		if a.PublicAddress != "" && existing.PublicAddress == a.PublicAddress {
			return fmt.Errorf("%w: address %s", ErrUniqueViolation, a.PublicAddress)
		}
		if existing.ExternalID == a.ExternalID {
			return fmt.Errorf("%w: external id %s", ErrUniqueViolation, a.ExternalID)
		}
	}
	if a.ID == 0 {
		a.ID = m.nextID
		m.nextID++
		m.accounts = append(m.accounts, clone(a))
		return nil
	}
	for i, existing := range m.accounts {
		if existing.ID != a.ID {
			continue
		}
		if existing.PublicAddress != "" && existing.PublicAddress != a.PublicAddress {
			return fmt.Errorf("address of %s is immutable", a.Handle)
		}
		if len(a.History) < len(existing.History) {
			return fmt.Errorf("history of %s is append-only", a.Handle)
		}
		m.accounts[i] = clone(a)
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		r = append(r, clone(a))
	}
	return r, nil
}

func clone(a *Account) *Account {
	c := *a
	c.History = make([]LedgerEvent, len(a.History))
	for i, e := range a.History {
		e.OriginReferences = append([]string(nil), e.OriginReferences...)
		c.History[i] = e
	}
	c.PendingClaims = append([]PendingClaim(nil), a.PendingClaims...)
	return &c
}

