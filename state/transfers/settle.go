package transfers

import (
	"context"
	"fmt"

	"tipbot/state/accounts"
)

// Settle writes a confirmed transfer into account history: a credit for the recipient, clearing
// the claims it covers, and a debit for the sender. Events already present for the same
// transaction are not written twice, so Settle may be repeated.
func (e *Executor) Settle(ctx context.Context, t Transfer) error {
	at := e.now().UTC()
	if t.Recipient != "" {
		recipient, err := findAccount(ctx, e.store, t.Recipient)
		if err != nil {
			return err
		}
		if !recipient.HasEvent(t.ChainTxID, accounts.Credit) {
			recipient.AppendEvent(accounts.LedgerEvent{
				Direction:          accounts.Credit,
				Amount:             t.Amount,
				Currency:           t.Currency,
				CounterpartyHandle: t.Sender,
				ChainTxID:          t.ChainTxID,
				OriginReferences:   t.Origins,
				Timestamp:          at,
			})
		}
		for _, o := range t.Origins {
			recipient.RemoveClaim(o, t.Sender)
		}
		recipient.UpdatedAt = at
		if err := e.store.SaveAccount(ctx, recipient); err != nil {
			return fmt.Errorf("save %s: %w", recipient.Handle, err)
		}
	}

	sender, err := findAccount(ctx, e.store, t.Sender)
	if err != nil {
		return err
	}
	if sender.HasEvent(t.ChainTxID, accounts.Debit) {
		return nil
	}
	counterparty := t.Recipient
	if counterparty == "" {
		counterparty = t.ToAddress
	}
	sender.AppendEvent(accounts.LedgerEvent{
		Direction:          accounts.Debit,
		Amount:             t.Amount,
		Currency:           t.Currency,
		CounterpartyHandle: counterparty,
		ChainTxID:          t.ChainTxID,
		OriginReferences:   t.Origins,
		Timestamp:          at,
	})
	sender.UpdatedAt = at
	if err := e.store.SaveAccount(ctx, sender); err != nil {
		return fmt.Errorf("save %s: %w", sender.Handle, err)
	}
	return nil
}
