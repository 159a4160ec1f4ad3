package transfers

import (
	"context"
	"fmt"
	"time"

	"tipbot/engine/library"
	"tipbot/messaging/chain"
)

// Reconciler settles transfers whose confirmation arrived after the executor gave up waiting.
type Reconciler struct {
	exec   *Executor
	maxAge time.Duration
}

func NewReconciler(exec *Executor, maxAge time.Duration) *Reconciler {
	return &Reconciler{exec: exec, maxAge: maxAge}
}

type SweepReport struct {
	Settled int
	Dropped int
	Pending int
}

// Sweep checks every unsettled transfer once. Confirmed ones are settled, rejected ones are
// forgotten, and pending ones are kept until they are older than maxAge.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	list, err := r.exec.ledger.ListUnsettled(ctx)
	if err != nil {
		return rep, fmt.Errorf("list unsettled: %w", err)
	}
	for _, t := range list {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		st, err := r.exec.chain.GetConfirmationStatus(ctx, t.ChainTxID)
		if err != nil {
			library.LogCLI(fmt.Sprintf("reconcile %s: %v", t.ChainTxID, err), 2)
			rep.Pending++
			continue
		}
		switch st {
		case chain.Confirmed:
			if err := r.exec.Settle(ctx, t); err != nil {
				library.LogCLI(fmt.Sprintf("reconcile %s: settle: %v", t.ChainTxID, err), 1)
				rep.Pending++
				continue
			}
			library.LogCLI(fmt.Sprintf("late confirmation of %s from %s settled", t.ChainTxID, t.Sender), 4)
			r.forget(ctx, t.ChainTxID)
			rep.Settled++
		case chain.Rejected:
			library.LogCLI(fmt.Sprintf("unsettled transfer %s was rejected on chain", t.ChainTxID), 2)
			r.forget(ctx, t.ChainTxID)
			rep.Dropped++
		default:
			if r.exec.now().Sub(t.SubmittedAt) > r.maxAge {
				library.LogCLI(fmt.Sprintf("giving up on %s after %s without a status", t.ChainTxID, r.maxAge), 2)
				r.forget(ctx, t.ChainTxID)
				rep.Dropped++
				continue
			}
			rep.Pending++
		}
	}
	return rep, nil
}

func (r *Reconciler) forget(ctx context.Context, txID string) {
	if err := r.exec.ledger.DeleteUnsettled(ctx, txID); err != nil {
		library.LogCLI(fmt.Sprintf("delete unsettled %s: %v", txID, err), 1)
	}
}
