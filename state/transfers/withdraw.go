package transfers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"tipbot/engine/custody"
)

// Withdraw moves native asset from a custodial account to an external address.
func (e *Executor) Withdraw(ctx context.Context, handle, toAddress string, amount decimal.Decimal) Result {
	a, err := findAccount(ctx, e.store, handle)
	if err != nil {
		return Result{Outcome: StorageFailed, Err: err}
	}
	if !a.CanSpend() {
		return Result{Outcome: NotEligible, Err: ErrNotCustodial}
	}
	if !custody.ValidAddress(toAddress) {
		return Result{Outcome: NotEligible, Err: fmt.Errorf("invalid address %q", toAddress)}
	}
	units, err := e.cfg.BaseUnits(amount)
	if err != nil {
		return Result{Outcome: NotEligible, Err: err}
	}
	return e.transfer(ctx, a, Transfer{
		Sender:    a.Handle,
		ToAddress: toAddress,
		Amount:    e.cfg.DisplayUnits(units),
		Currency:  e.cfg.NativeCurrency,
	}, units)
}
