package chain

import (
	"context"
	"errors"
	"testing"

	"tipbot/engine/custody"
)

func TestSimulatedTransfer(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated()
	from, secret, err := custody.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	to, _, _ := custody.NewKeypair()
	s.Fund(from, 100)

	if _, err := s.SubmitTransfer(ctx, secret, to, 200); !errors.Is(err, ErrSimulatedFunds) {
		t.Fatalf("SubmitTransfer() error = %v, want ErrSimulatedFunds", err)
	}
	txID, err := s.SubmitTransfer(ctx, secret, to, 60)
	if err != nil {
		t.Fatalf("SubmitTransfer() error = %v", err)
	}
	st, err := s.GetConfirmationStatus(ctx, txID)
	if err != nil || st != Confirmed {
		t.Fatalf("GetConfirmationStatus() = %v, %v, want confirmed", st, err)
	}
	if b, _ := s.GetBalance(ctx, to); b != 60 {
		t.Errorf("recipient balance = %d, want 60", b)
	}
	if b, _ := s.GetBalance(ctx, from); b != 40 {
		t.Errorf("sender balance = %d, want 40", b)
	}
}

func TestSimulatedHold(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated()
	s.Hold = true
	from, secret, _ := custody.NewKeypair()
	to, _, _ := custody.NewKeypair()
	s.Fund(from, 10)

	txID, err := s.SubmitTransfer(ctx, secret, to, 10)
	if err != nil {
		t.Fatalf("SubmitTransfer() error = %v", err)
	}
	if st, _ := s.GetConfirmationStatus(ctx, txID); st != Pending {
		t.Fatalf("status = %v, want pending", st)
	}
	s.Resolve(txID, Confirmed)
	if st, _ := s.GetConfirmationStatus(ctx, txID); st != Confirmed {
		t.Fatalf("status = %v, want confirmed", st)
	}
	if b, _ := s.GetBalance(ctx, to); b != 10 {
		t.Errorf("recipient balance = %d, want 10", b)
	}
}

func TestStatusString(t *testing.T) {
	for st, want := range map[Status]string{Pending: "pending", Confirmed: "confirmed", Rejected: "rejected"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
