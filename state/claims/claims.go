// Package claims keeps value owed to a recipient that has not been realized on chain.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tipbot/engine/library"
	"tipbot/state/accounts"
	"tipbot/state/tips"
	"tipbot/state/transfers"
)

var (
	ErrClaimNotFound        = errors.New("no matching pending claim")
	ErrRecipientNotFundable = errors.New("recipient has no address to receive funds")
	ErrClaimUnfunded        = errors.New("the sender of this claim has no custodial funds")
	ErrClaimInFlight        = errors.New("claim is covered by a transfer awaiting confirmation")
	ErrClaimTransfer        = errors.New("claim transfer did not confirm")
)

type Ledger struct {
	store     accounts.Store
	exec      *transfers.Executor
	unsettled transfers.Ledger
	now       func() time.Time
}

func New(store accounts.Store, exec *transfers.Executor, unsettled transfers.Ledger) *Ledger {
	return &Ledger{
		store:     store,
		exec:      exec,
		unsettled: unsettled,
		now:       time.Now,
	}
}

func (l *Ledger) find(ctx context.Context, handle string) (*accounts.Account, error) {
	a, err := l.store.FindAccountByHandle(ctx, handle)
	if errors.Is(err, accounts.ErrNotFound) {
		a, err = l.store.FindPlaceholderByHandle(ctx, handle)
	}
	return a, err
}

// RecordPending adds one claim per intent in the batch to the recipient. Intents already
// claimed under the same origin and sender are skipped. It returns how many were added.
func (l *Ledger) RecordPending(ctx context.Context, recipient *accounts.Account, b *tips.Batch) (int, error) {
	// re-read so a save made earlier in the cycle is not overwritten
	a, err := l.find(ctx, recipient.Handle)
	if err != nil {
		return 0, fmt.Errorf("find %s: %w", recipient.Handle, err)
	}
	added := 0
	at := l.now().UTC()
	for _, i := range b.Intents {
		if a.CreditedFor(i.OriginReference, i.Sender) {
			continue
		}
		if a.AddClaim(accounts.PendingClaim{
			Amount:          i.Amount,
			Currency:        i.Currency,
			OriginReference: i.OriginReference,
			Sender:          i.Sender,
			CreatedAt:       at,
		}) {
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	a.UpdatedAt = at
	if err := l.store.SaveAccount(ctx, a); err != nil {
		return 0, fmt.Errorf("save %s: %w", a.Handle, err)
	}
	*recipient = *a
	library.LogCLI(fmt.Sprintf("recorded %d pending claim(s) for %s from %s", added, a.Handle, b.Sender), 4)
	return added, nil
}

// ResolveClaim realizes one claim by sending its value from the claim's sender to the recipient.
// It returns the credit written to the recipient's history.
func (l *Ledger) ResolveClaim(ctx context.Context, recipientHandle, origin, sender string) (accounts.LedgerEvent, error) {
	h, err := accounts.NormalizeHandle(recipientHandle)
	if err != nil {
		return accounts.LedgerEvent{}, err
	}
	recipient, err := l.find(ctx, h)
	if err != nil {
		return accounts.LedgerEvent{}, fmt.Errorf("find %s: %w", h, err)
	}
	if !recipient.Fundable() {
		return accounts.LedgerEvent{}, ErrRecipientNotFundable
	}
	claim, ok := recipient.FindClaim(origin, sender)
	if !ok {
		return accounts.LedgerEvent{}, ErrClaimNotFound
	}
	inFlight, err := transfers.InFlight(ctx, l.unsettled, origin, claim.Sender)
	if err != nil {
		return accounts.LedgerEvent{}, fmt.Errorf("check unsettled transfers: %w", err)
	}
	if inFlight {
		return accounts.LedgerEvent{}, ErrClaimInFlight
	}
	from, err := l.find(ctx, claim.Sender)
	if errors.Is(err, accounts.ErrNotFound) || (err == nil && !from.CanSpend()) {
		return accounts.LedgerEvent{}, ErrClaimUnfunded
	}
	if err != nil {
		return accounts.LedgerEvent{}, fmt.Errorf("find %s: %w", claim.Sender, err)
	}

	b := &tips.Batch{
		Sender:    claim.Sender,
		Recipient: recipient.Handle,
		Currency:  claim.Currency,
		Total:     claim.Amount,
		Intents: []tips.TipIntent{{
			Sender:          claim.Sender,
			Recipient:       recipient.Handle,
			Amount:          claim.Amount,
			Currency:        claim.Currency,
			OriginReference: claim.OriginReference,
		}},
	}
	res := l.exec.Execute(ctx, b, from, recipient)
	if res.Outcome != transfers.Confirmed {
		if res.Err != nil {
			return accounts.LedgerEvent{}, fmt.Errorf("%w: %s: %v", ErrClaimTransfer, res.Outcome, res.Err)
		}
		return accounts.LedgerEvent{}, fmt.Errorf("%w: %s", ErrClaimTransfer, res.Outcome)
	}
	updated, err := l.find(ctx, recipient.Handle)
	if err != nil {
		return accounts.LedgerEvent{}, fmt.Errorf("find %s: %w", recipient.Handle, err)
	}
	for _, e := range updated.History {
		if e.ChainTxID == res.TxID && e.Direction == accounts.Credit {
			return e, nil
		}
	}
	return accounts.LedgerEvent{}, fmt.Errorf("credit for %s missing after settlement", res.TxID)
}

// Statement is what an account holder sees: value realized and value still owed.
type Statement struct {
	Handle        string
	PublicAddress string
	CustodyMode   accounts.CustodyMode
	Registered    bool
	Claims        []accounts.PendingClaim
	History       []accounts.LedgerEvent
}

func (l *Ledger) Pending(ctx context.Context, handle string) (*Statement, error) {
	h, err := accounts.NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	a, err := l.find(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", h, err)
	}
	return &Statement{
		Handle:        a.Handle,
		PublicAddress: a.PublicAddress,
		CustodyMode:   a.CustodyMode,
		Registered:    !a.IsPlaceholder(),
		Claims:        a.PendingClaims,
		History:       a.History,
	}, nil
}
