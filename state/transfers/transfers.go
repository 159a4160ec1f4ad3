// Package transfers moves value on chain from custodial accounts and records the confirmed result.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"tipbot/state/accounts"
)

type Outcome int

const (
	Confirmed Outcome = iota + 1
	NotEligible
	DecryptionFailed
	InsufficientFunds
	SubmitFailed
	ChainRejected
	TimedOut
	StorageFailed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case NotEligible:
		return "not eligible"
	case DecryptionFailed:
		return "decryption failed"
	case InsufficientFunds:
		return "insufficient funds"
	case SubmitFailed:
		return "submit failed"
	case ChainRejected:
		return "rejected on chain"
	case TimedOut:
		return "timed out"
	case StorageFailed:
		return "storage failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one execution attempt. TxID is set whenever a transaction was submitted.
type Result struct {
	Outcome Outcome
	TxID    string
	Err     error
}

func (r Result) Submitted() bool {
	return r.TxID != ""
}

var (
	ErrNotCustodial  = errors.New("sender has no custodial spending key")
	ErrNoAddress     = errors.New("recipient has no address")
	ErrNotNative     = errors.New("only the native asset can be sent from custody")
	ErrInvalidAmount = errors.New("amount must be positive and representable on chain")
)

// Transfer is a submitted movement of value, settled into account history once confirmed.
// Recipient is empty for withdrawals to an external address.
type Transfer struct {
	ChainTxID   string
	Sender      string
	Recipient   string
	ToAddress   string
	Amount      decimal.Decimal
	Currency    string
	Origins     []string
	SubmittedAt time.Time
}

// Ledger persists transfers whose confirmation was not observed in time.
type Ledger interface {
	SaveUnsettled(ctx context.Context, t Transfer) error
	ListUnsettled(ctx context.Context) ([]Transfer, error)
	DeleteUnsettled(ctx context.Context, txID string) error
}

// InFlight reports whether an unsettled transfer from sender covers origin.
func InFlight(ctx context.Context, l Ledger, origin, sender string) (bool, error) {
	_, ok, err := Covering(ctx, l, origin, sender)
	return ok, err
}

// Covering returns the unsettled transfer from sender that covers origin.
func Covering(ctx context.Context, l Ledger, origin, sender string) (Transfer, bool, error) {
	list, err := l.ListUnsettled(ctx)
	if err != nil {
		return Transfer{}, false, err
	}
	for _, t := range list {
		if !accounts.SameHandle(t.Sender, sender) {
			continue
		}
		for _, o := range t.Origins {
			if o == origin {
				return t, true, nil
			}
		}
	}
	return Transfer{}, false, nil
}

// Config carries the chain parameters the executor works with.
type Config struct {
	NativeCurrency  string
	Decimals        int32
	FeeMargin       uint64 // base units held back for the network fee
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

// BaseUnits converts a display amount to the chain's smallest unit, rounding down.
func (c Config) BaseUnits(amount decimal.Decimal) (uint64, error) {
	u := amount.Shift(c.Decimals).Floor()
	if !u.IsPositive() {
		return 0, ErrInvalidAmount
	}
	b := u.BigInt()
	if !b.IsUint64() {
		return 0, ErrInvalidAmount
	}
	return b.Uint64(), nil
}

// DisplayUnits converts base units back to a display amount.
func (c Config) DisplayUnits(units uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -c.Decimals)
}

func findAccount(ctx context.Context, store accounts.Store, handle string) (*accounts.Account, error) {
	a, err := store.FindAccountByHandle(ctx, handle)
	if errors.Is(err, accounts.ErrNotFound) {
		a, err = store.FindPlaceholderByHandle(ctx, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", handle, err)
	}
	return a, nil
}
