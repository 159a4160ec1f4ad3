package transfers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tipbot/engine/custody"
	"tipbot/engine/library"
	"tipbot/messaging/chain"
	"tipbot/state/accounts"
	"tipbot/state/tips"
)

type Executor struct {
	chain  chain.Chain
	store  accounts.Store
	keys   custody.Sealer
	ledger Ledger
	cfg    Config
	now    func() time.Time
}

func NewExecutor(c chain.Chain, store accounts.Store, keys custody.Sealer, ledger Ledger, cfg Config) *Executor {
	return &Executor{
		chain:  c,
		store:  store,
		keys:   keys,
		ledger: ledger,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (e *Executor) Config() Config {
	return e.cfg
}

// Execute sends the batch total from sender to recipient as one transfer and, once it is
// confirmed, records it in both histories. Failures are returned as outcomes, never panics.
func (e *Executor) Execute(ctx context.Context, b *tips.Batch, sender, recipient *accounts.Account) Result {
	switch {
	case !sender.CanSpend():
		return Result{Outcome: NotEligible, Err: ErrNotCustodial}
	case !recipient.Fundable():
		return Result{Outcome: NotEligible, Err: ErrNoAddress}
	case !strings.EqualFold(b.Currency, e.cfg.NativeCurrency):
		return Result{Outcome: NotEligible, Err: fmt.Errorf("%w: %s", ErrNotNative, b.Currency)}
	}
	units, err := e.cfg.BaseUnits(b.Total)
	if err != nil {
		return Result{Outcome: NotEligible, Err: err}
	}
	t := Transfer{
		Sender:    sender.Handle,
		Recipient: recipient.Handle,
		ToAddress: recipient.PublicAddress,
		Amount:    e.cfg.DisplayUnits(units),
		Currency:  strings.ToUpper(b.Currency),
		Origins:   b.Origins(),
	}
	return e.transfer(ctx, sender, t, units)
}

func (e *Executor) transfer(ctx context.Context, sender *accounts.Account, t Transfer, units uint64) Result {
	txID, outcome, err := e.send(ctx, sender, t.ToAddress, units)
	t.ChainTxID = txID
	t.SubmittedAt = e.now().UTC()
	switch outcome {
	case Confirmed:
		if err := e.Settle(ctx, t); err != nil {
			// the value moved, so keep the record for the reconciler to settle later
			e.keepUnsettled(ctx, t)
			return Result{Outcome: StorageFailed, TxID: txID, Err: err}
		}
		library.LogCLI(fmt.Sprintf("transfer %s of %s %s from %s to %s confirmed", txID, t.Amount, t.Currency, t.Sender, t.ToAddress), 4)
	case TimedOut:
		e.keepUnsettled(ctx, t)
		library.LogCLI(fmt.Sprintf("transfer %s from %s not confirmed in %s, handing it to the reconciler", txID, t.Sender, e.cfg.ConfirmTimeout), 2)
	default:
		library.LogCLI(fmt.Sprintf("transfer from %s failed: %s: %v", t.Sender, outcome, err), 2)
	}
	return Result{Outcome: outcome, TxID: txID, Err: err}
}

func (e *Executor) keepUnsettled(ctx context.Context, t Transfer) {
	if err := e.ledger.SaveUnsettled(ctx, t); err != nil {
		library.LogCLI(fmt.Sprintf("could not record unsettled transfer %s: %v", t.ChainTxID, err), 1)
	}
}

// send checks funds, submits and waits for a terminal status. The decrypted key never outlives the call.
func (e *Executor) send(ctx context.Context, sender *accounts.Account, to string, units uint64) (string, Outcome, error) {
	secret, err := e.keys.Open(sender.Secret)
	if err != nil {
		return "", DecryptionFailed, fmt.Errorf("%s: %w", sender.Handle, err)
	}
	defer func() {
		for i := range secret {
			secret[i] = 0
		}
	}()

	done := library.ValidateSaneExecutionTime()
	balance, err := e.chain.GetBalance(ctx, sender.PublicAddress)
	done()
	if err != nil {
		return "", SubmitFailed, fmt.Errorf("get balance: %w", err)
	}
	if required := units + e.cfg.FeeMargin; balance < required {
		return "", InsufficientFunds, fmt.Errorf("balance %d is below the %d required", balance, required)
	}

	done = library.ValidateSaneExecutionTime()
	txID, err := e.chain.SubmitTransfer(ctx, secret, to, units)
	done()
	if err != nil {
		return "", SubmitFailed, fmt.Errorf("submit transfer: %w", err)
	}
	library.LogCLI(fmt.Sprintf("submitted %s, awaiting confirmation", txID), 3)
	outcome := e.awaitConfirmation(ctx, txID)
	if outcome == ChainRejected {
		return txID, outcome, fmt.Errorf("transaction %s failed on chain", txID)
	}
	return txID, outcome, nil
}

func (e *Executor) awaitConfirmation(ctx context.Context, txID string) Outcome {
	deadline := time.NewTimer(e.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.ConfirmInterval)
	defer ticker.Stop()
	for {
		st, err := e.chain.GetConfirmationStatus(ctx, txID)
		if err != nil {
			library.LogCLI(fmt.Sprintf("status of %s: %v", txID, err), 3)
		} else {
			switch st {
			case chain.Confirmed:
				return Confirmed
			case chain.Rejected:
				return ChainRejected
			}
		}
		select {
		case <-ctx.Done():
			return TimedOut
		case <-deadline.C:
			return TimedOut
		case <-ticker.C:
		}
	}
}
