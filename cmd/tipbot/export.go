package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"tipbot/engine/actors"
	"tipbot/state/accounts"
)

// exportedAccount is an account without key material.
type exportedAccount struct {
	Handle        string          `yaml:"handle"`
	ExternalID    string          `yaml:"external_id"`
	PublicAddress string          `yaml:"public_address,omitempty"`
	CustodyMode   string          `yaml:"custody_mode"`
	History       []exportedEvent `yaml:"history,omitempty"`
	PendingClaims []exportedClaim `yaml:"pending_claims,omitempty"`
	CreatedAt     time.Time       `yaml:"created_at"`
}

type exportedEvent struct {
	Direction    string    `yaml:"direction"`
	Amount       string    `yaml:"amount"`
	Currency     string    `yaml:"currency"`
	Counterparty string    `yaml:"counterparty"`
	ChainTxID    string    `yaml:"chain_tx_id"`
	Origins      []string  `yaml:"origins,omitempty"`
	Timestamp    time.Time `yaml:"timestamp"`
}

type exportedClaim struct {
	Amount    string    `yaml:"amount"`
	Currency  string    `yaml:"currency"`
	Origin    string    `yaml:"origin"`
	Sender    string    `yaml:"sender"`
	CreatedAt time.Time `yaml:"created_at"`
}

func exportAccounts(list []*accounts.Account) ([]byte, error) {
	out := make([]exportedAccount, 0, len(list))
	for _, a := range list {
		e := exportedAccount{
			Handle:        a.Handle,
			ExternalID:    a.ExternalID,
			PublicAddress: a.PublicAddress,
			CustodyMode:   string(a.CustodyMode),
			CreatedAt:     a.CreatedAt.UTC(),
		}
		for _, h := range a.History {
			e.History = append(e.History, exportedEvent{
				Direction:    string(h.Direction),
				Amount:       h.Amount.String(),
				Currency:     h.Currency,
				Counterparty: h.CounterpartyHandle,
				ChainTxID:    h.ChainTxID,
				Origins:      h.OriginReferences,
				Timestamp:    h.Timestamp.UTC(),
			})
		}
		for _, c := range a.PendingClaims {
			e.PendingClaims = append(e.PendingClaims, exportedClaim{
				Amount:    c.Amount.String(),
				Currency:  c.Currency,
				Origin:    c.OriginReference,
				Sender:    c.Sender,
				CreatedAt: c.CreatedAt.UTC(),
			})
		}
		out = append(out, e)
	}
	return yaml.Marshal(out)
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every account, without secrets, to a yaml file in the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			list, err := a.store.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			b, err := exportAccounts(list)
			if err != nil {
				return err
			}
			path, err := actors.Write("exports", fmt.Sprintf("accounts-%d.yaml", time.Now().Unix()), b)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d account(s) to %s\n", len(list), path)
			return nil
		},
	}
}
