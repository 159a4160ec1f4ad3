package chain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// Solana talks to a Solana JSON-RPC endpoint. Amounts are lamports.
type Solana struct {
	client *rpc.Client
}

func NewSolana(endpoint string) *Solana {
	return &Solana{client: rpc.New(endpoint)}
}

func (s *Solana) GetBalance(ctx context.Context, address string) (uint64, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("parse address %s: %w", address, err)
	}
	out, err := s.client.GetBalance(ctx, pub, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (s *Solana) SubmitTransfer(ctx context.Context, fromSecret []byte, toAddress string, amount uint64) (string, error) {
	if len(fromSecret) != 64 {
		return "", fmt.Errorf("secret is %d bytes, want 64", len(fromSecret))
	}
	from := solana.PrivateKey(fromSecret)
	to, err := solana.PublicKeyFromBase58(toAddress)
	if err != nil {
		return "", fmt.Errorf("parse address %s: %w", toAddress, err)
	}
	recent, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(amount, from.PublicKey(), to).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(from.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from.PublicKey()) {
			return &from
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (s *Solana) GetConfirmationStatus(ctx context.Context, txID string) (Status, error) {
	sig, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return Pending, fmt.Errorf("parse signature %s: %w", txID, err)
	}
	out, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return Pending, err
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return Pending, nil
	}
	st := out.Value[0]
	if st.Err != nil {
		return Rejected, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return Confirmed, nil
	}
	return Pending, nil
}
