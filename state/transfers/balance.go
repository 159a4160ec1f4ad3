package transfers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"tipbot/engine/library"
)

// Balance returns the on-chain native balance held at the account's address.
func (e *Executor) Balance(ctx context.Context, handle string) (decimal.Decimal, error) {
	a, err := findAccount(ctx, e.store, handle)
	if err != nil {
		return decimal.Zero, err
	}
	if a.PublicAddress == "" {
		return decimal.Zero, ErrNoAddress
	}
	done := library.ValidateSaneExecutionTime()
	units, err := e.chain.GetBalance(ctx, a.PublicAddress)
	done()
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance of %s: %w", a.PublicAddress, err)
	}
	return e.cfg.DisplayUnits(units), nil
}
