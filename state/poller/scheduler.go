package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tipbot/engine/library"
	"tipbot/state/transfers"
)

var ErrSystemSleep = errors.New("system sleep detected")

// Run polls every interval until ctx ends, sweeping unsettled transfers after each cycle.
// On macOS it returns ErrSystemSleep when the machine goes to sleep.
func (p *Poller) Run(ctx context.Context, interval time.Duration, r *transfers.Reconciler) error {
	sleep := make(chan bool, 1)
	sleeper(sleep)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p.tick(ctx, r)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sleep:
			library.LogCLI("system sleep detected, stopping the poller", 2)
			return ErrSystemSleep
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context, r *transfers.Reconciler) {
	if _, err := p.RunCycle(ctx); err != nil {
		library.LogCLI(fmt.Sprintf("poll cycle failed: %v", err), 2)
	}
	if r == nil {
		return
	}
	rep, err := r.Sweep(ctx)
	if err != nil {
		library.LogCLI(fmt.Sprintf("reconcile sweep failed: %v", err), 2)
		return
	}
	if rep.Settled+rep.Dropped > 0 {
		library.LogCLI(fmt.Sprintf("reconcile sweep: %+v", rep), 4)
	}
}
