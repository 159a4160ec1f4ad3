package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"tipbot/engine/actors"
	"tipbot/engine/library"
	"tipbot/state/poller"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll for tip mentions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.poller()
			if err != nil {
				return err
			}

			terminateChan := make(chan struct{})
			actors.SetTerminateChan(terminateChan)
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			go func() {
				select {
				case <-terminateChan:
					cancel()
				case <-ctx.Done():
				}
			}()
			if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
				go cliListener(ctx, a, p)
			}

			library.LogCLI(fmt.Sprintf("polling every %s as %s", a.settings.PollInterval, a.settings.BotHandle), 4)
			err = p.Run(ctx, a.settings.PollInterval, a.reconciler)
			switch {
			case errors.Is(err, context.Canceled):
				fmt.Println("Bye")
				return nil
			case errors.Is(err, poller.ErrSystemSleep):
				actors.Shutdown()
				return err
			default:
				return err
			}
		},
	}
	cmd.Flags().BoolP("interactive", "i", false, "listen for keypresses (p poll, a accounts, c config, w wallet, q quit)")
	return cmd
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one poll cycle and a reconcile sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.poller()
			if err != nil {
				return err
			}
			rep, err := p.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("fetched %d, intents %d, batches %d, sent %d, deferred %d, skipped %d, failed %d, replies %d\n",
				rep.Fetched, rep.Intents, rep.Batches, rep.Sent, rep.Deferred, rep.Skipped, rep.Failed, rep.Replies)
			return sweep(cmd.Context(), a)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Settle transfers that confirmed after the bot stopped waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return sweep(cmd.Context(), a)
		},
	}
}

func sweep(ctx context.Context, a *app) error {
	rep, err := a.reconciler.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("unsettled transfers: settled %d, dropped %d, still pending %d\n", rep.Settled, rep.Dropped, rep.Pending)
	return nil
}
