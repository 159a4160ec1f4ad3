package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"tipbot/state/accounts"
	"tipbot/state/transfers"
)

func ensureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure [handle]",
		Short: "Make sure a handle has a custodial account with an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			acc, err := a.resolver.EnsureCustodialAccount(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			printAccount(acc)
			return nil
		},
	}
}

func signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup [handle] [external id]",
		Short: "Register the owner of a handle, inheriting any placeholder account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			address, _ := cmd.Flags().GetString("address")
			acc, err := a.resolver.Register(cmd.Context(), args[0], args[1], address)
			if err != nil {
				return err
			}
			printAccount(acc)
			return nil
		},
	}
	cmd.Flags().String("address", "", "self-managed address; omit for a custodial account")
	return cmd
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending [handle]",
		Short: "Show the pending claims and confirmed history of a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.claims.Pending(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s, registered: %t) %s\n", st.Handle, st.CustodyMode, st.Registered, st.PublicAddress)
			fmt.Println("\nPending claims:")
			for _, c := range st.Claims {
				fmt.Printf("  %s %s from %s, origin %s\n", c.Amount, c.Currency, c.Sender, c.OriginReference)
			}
			fmt.Println("\nHistory:")
			for _, e := range st.History {
				fmt.Printf("  %s %s %s %s %s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Direction,
					e.Amount, e.Currency, e.CounterpartyHandle, e.ChainTxID)
			}
			return nil
		},
	}
}

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim [handle] [origin] [sender]",
		Short: "Realize one pending claim on chain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			e, err := a.claims.ResolveClaim(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("claimed %s %s, transaction %s\n", e.Amount, e.Currency, e.ChainTxID)
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [handle]",
		Short: "Show the on-chain balance at a handle's address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			amount, err := a.exec.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", amount, a.settings.NativeCurrency)
			return nil
		},
	}
}

func withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw [handle] [address] [amount]",
		Short: "Send native asset from a custodial account to an external address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[2], err)
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			res := a.exec.Withdraw(cmd.Context(), args[0], args[1], amount)
			switch res.Outcome {
			case transfers.Confirmed:
				fmt.Printf("withdrew %s %s, transaction %s\n", amount, a.settings.NativeCurrency, res.TxID)
				return nil
			case transfers.TimedOut:
				fmt.Printf("transaction %s submitted but not confirmed yet, run reconcile later\n", res.TxID)
				return nil
			default:
				return fmt.Errorf("%s: %w", res.Outcome, res.Err)
			}
		},
	}
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List every account, or the one holding --address",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if address, _ := cmd.Flags().GetString("address"); address != "" {
				acc, err := a.store.FindAccountByAddress(cmd.Context(), address)
				if err != nil {
					return fmt.Errorf("%s: %w", address, err)
				}
				printAccount(acc)
				return nil
			}
			list, err := a.store.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			for _, acc := range list {
				printAccount(acc)
			}
			return nil
		},
	}
	cmd.Flags().String("address", "", "find the account holding this address")
	return cmd
}

func printAccount(acc *accounts.Account) {
	status := "registered"
	if acc.IsPlaceholder() {
		status = "placeholder"
	}
	fmt.Printf("%-24s %-12s %-12s %s claims: %d events: %d\n", acc.Handle, acc.CustodyMode, status,
		valueOrDefault(acc.PublicAddress, "-"), len(acc.PendingClaims), len(acc.History))
}

func valueOrDefault(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}
