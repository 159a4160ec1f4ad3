package custody

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// NewKeypair generates an ed25519 keypair and returns the ledger address and the raw 64 byte secret.
func NewKeypair() (address string, secret []byte, err error) {
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate keypair: %w", err)
	}
	return pk.PublicKey().String(), []byte(pk), nil
}

// AddressOf derives the ledger address from a raw secret.
func AddressOf(secret []byte) (string, error) {
	if len(secret) != 64 {
		return "", fmt.Errorf("secret is %d bytes, want 64", len(secret))
	}
	return solana.PrivateKey(secret).PublicKey().String(), nil
}

// ValidAddress reports whether s is a well formed ledger address.
func ValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}
