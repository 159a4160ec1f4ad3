// Package chain is the ledger capability used to move the native asset.
package chain

import (
	"context"
)

type Status int

const (
	Pending Status = iota
	Confirmed
	Rejected
)

func (s Status) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Chain amounts are integers in the asset's smallest unit.
type Chain interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	// SubmitTransfer signs with the raw 64 byte secret and returns the transaction id.
	SubmitTransfer(ctx context.Context, fromSecret []byte, toAddress string, amount uint64) (string, error)
	GetConfirmationStatus(ctx context.Context, txID string) (Status, error)
}
