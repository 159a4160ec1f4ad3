package poller

import (
	"context"
	"errors"
	"fmt"

	"tipbot/engine/library"
	"tipbot/state/accounts"
	"tipbot/state/tips"
	"tipbot/state/transfers"
)

type outcomeKind int

const (
	failed outcomeKind = iota
	sent
	stored      // moved on chain, history written later by the reconciler
	deferred    // recorded as pending claims
	unconfirmed // submitted but not confirmed in time, also recorded as claims
	skipped     // every intent was already credited
)

type outcome struct {
	kind     outcomeKind
	batch    *tips.Batch
	mentions []mention
	txID     string
	reason   string
}

func (p *Poller) processBatch(ctx context.Context, b *tips.Batch, byOrigin map[string]mention) outcome {
	o := outcome{batch: b, mentions: mentionsOf(b, byOrigin)}
	recipient, err := p.resolver.EnsureCustodialAccount(ctx, b.Recipient, "")
	if err != nil {
		library.LogCLI(fmt.Sprintf("batch %s -> %s aborted: %v", b.Sender, b.Recipient, err), 1)
		return o
	}

	if b = withoutCredited(b, recipient); b == nil {
		library.LogCLI(fmt.Sprintf("batch %s -> %s was already credited", o.batch.Sender, o.batch.Recipient), 3)
		o.kind = skipped
		return o
	}
	o.batch, o.mentions = b, mentionsOf(b, byOrigin)

	b, held, err := p.withoutInFlight(ctx, b)
	if err != nil {
		library.LogCLI(fmt.Sprintf("batch %s -> %s aborted, unsettled transfers unreadable: %v", o.batch.Sender, o.batch.Recipient, err), 1)
		return o
	}
	if b == nil {
		library.LogCLI(fmt.Sprintf("batch %s -> %s is already in flight in %s", o.batch.Sender, o.batch.Recipient, held), 3)
		o.kind, o.txID, o.reason = unconfirmed, held, "the transfer is not confirmed yet"
		return o
	}
	o.batch, o.mentions = b, mentionsOf(b, byOrigin)

	sender, reason := p.spender(ctx, b, o.mentions)
	if sender == nil {
		return p.deferBatch(ctx, o, recipient, reason)
	}
	res := p.exec.Execute(ctx, b, sender, recipient)
	o.txID = res.TxID
	switch {
	case res.Outcome == transfers.Confirmed:
		o.kind = sent
		library.LogCLI(fmt.Sprintf("sent %s %s from %s to %s in %s", b.Total, b.Currency, b.Sender, b.Recipient, res.TxID), 4)
		return o
	case res.Outcome == transfers.StorageFailed && res.Submitted():
		o.kind = stored
		library.LogCLI(fmt.Sprintf("sent %s but history is not written yet: %v", res.TxID, res.Err), 1)
		return o
	case res.Outcome == transfers.TimedOut:
		o = p.deferBatch(ctx, o, recipient, "the transfer is not confirmed yet")
		if o.kind == deferred {
			o.kind = unconfirmed
		}
		return o
	}
	return p.deferBatch(ctx, o, recipient, res.Outcome.String())
}

func (p *Poller) deferBatch(ctx context.Context, o outcome, recipient *accounts.Account, reason string) outcome {
	o.reason = reason
	if _, err := p.claims.RecordPending(ctx, recipient, o.batch); err != nil {
		library.LogCLI(fmt.Sprintf("could not record claims for %s from %s: %v", o.batch.Recipient, o.batch.Sender, err), 1)
		o.kind = failed
		return o
	}
	o.kind = deferred
	return o
}

// spender returns the sender's account if it may fund the batch, or the reason it may not.
// Spending authority is never assumed for a sender without a verified custodial account.
func (p *Poller) spender(ctx context.Context, b *tips.Batch, mentions []mention) (*accounts.Account, string) {
	if b.Sender == "" {
		return nil, "the sender is unknown"
	}
	sender, err := p.resolver.Lookup(ctx, b.Sender)
	if errors.Is(err, accounts.ErrNotFound) {
		return nil, b.Sender + " has no wallet yet"
	}
	if err != nil {
		library.LogCLI(fmt.Sprintf("lookup of sender %s failed: %v", b.Sender, err), 1)
		return nil, "the sender could not be looked up"
	}
	if sender.IsPlaceholder() {
		return nil, b.Sender + " must sign up first"
	}
	for _, m := range mentions {
		if m.post.AuthorID != "" && m.post.AuthorID != sender.ExternalID {
			return nil, b.Sender + " is not signed up from this identity"
		}
	}
	if !sender.CanSpend() {
		return nil, b.Sender + " has no custodial wallet"
	}
	return sender, ""
}

// withoutCredited drops intents the recipient already has a credit for. It returns nil when none are left.
func withoutCredited(b *tips.Batch, recipient *accounts.Account) *tips.Batch {
	var keep []tips.TipIntent
	for _, i := range b.Intents {
		if !recipient.CreditedFor(i.OriginReference, i.Sender) {
			keep = append(keep, i)
		}
	}
	return rebatch(b, keep)
}

// withoutInFlight drops intents covered by a transfer still awaiting confirmation, so a
// replayed mention is never submitted twice. When none are left it returns nil and the id
// of the covering transfer.
func (p *Poller) withoutInFlight(ctx context.Context, b *tips.Batch) (*tips.Batch, string, error) {
	var keep []tips.TipIntent
	var held string
	for _, i := range b.Intents {
		t, ok, err := transfers.Covering(ctx, p.unsettled, i.OriginReference, i.Sender)
		if err != nil {
			return nil, "", err
		}
		if ok {
			held = t.ChainTxID
			continue
		}
		keep = append(keep, i)
	}
	return rebatch(b, keep), held, nil
}

func rebatch(b *tips.Batch, keep []tips.TipIntent) *tips.Batch {
	if len(keep) == 0 {
		return nil
	}
	if len(keep) == len(b.Intents) {
		return b
	}
	return tips.Aggregate(keep)[0]
}

func mentionsOf(b *tips.Batch, byOrigin map[string]mention) []mention {
	r := make([]mention, 0, len(b.Intents))
	for _, i := range b.Intents {
		if m, ok := byOrigin[i.OriginReference]; ok {
			r = append(r, m)
		}
	}
	return r
}
