package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"tipbot/engine/custody"
)

// Simulated is an in-process ledger. It backs dry runs and tests.
type Simulated struct {
	mu       deadlock.Mutex
	balances map[string]uint64
	status   map[string]Status
	// Hold leaves new transactions pending until Resolve is called.
	Hold bool
	// Reject makes every new transaction fail on chain.
	Reject bool
	// SubmitErr, when set, is returned by SubmitTransfer.
	SubmitErr error
	Submits   []SimulatedTransfer
}

type SimulatedTransfer struct {
	TxID   string
	From   string
	To     string
	Amount uint64
}

var ErrSimulatedFunds = errors.New("simulated account has insufficient funds")

func NewSimulated() *Simulated {
	return &Simulated{
		balances: make(map[string]uint64),
		status:   make(map[string]Status),
	}
}

func (s *Simulated) Fund(address string, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] += amount
}

// Resolve sets the final status of a held transaction.
func (s *Simulated) Resolve(txID string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status[txID] != Pending {
		return
	}
	s.status[txID] = st
	if st != Confirmed {
		return
	}
	for _, t := range s.Submits {
		if t.TxID == txID {
			s.balances[t.From] -= t.Amount
			s.balances[t.To] += t.Amount
		}
	}
}

func (s *Simulated) GetBalance(ctx context.Context, address string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[address], nil
}

func (s *Simulated) SubmitTransfer(ctx context.Context, fromSecret []byte, toAddress string, amount uint64) (string, error) {
	from, err := custody.AddressOf(fromSecret)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}
	if s.balances[from] < amount {
		return "", fmt.Errorf("%w: %s", ErrSimulatedFunds, from)
	}
	txID := uuid.New().String()
	s.Submits = append(s.Submits, SimulatedTransfer{TxID: txID, From: from, To: toAddress, Amount: amount})
	switch {
	case s.Reject:
		s.status[txID] = Rejected
	case s.Hold:
		s.status[txID] = Pending
	default:
		s.balances[from] -= amount
		s.balances[toAddress] += amount
		s.status[txID] = Confirmed
	}
	return txID, nil
}

func (s *Simulated) GetConfirmationStatus(ctx context.Context, txID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[txID]
	if !ok {
		return Pending, fmt.Errorf("unknown transaction %s", txID)
	}
	return st, nil
}

// SubmitCount is safe to call while other goroutines submit.
func (s *Simulated) SubmitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Submits)
}
