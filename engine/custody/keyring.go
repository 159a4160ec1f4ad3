// Package custody holds the key lifecycle policy for custodial accounts: keypair
// generation and sealing private material under a process-wide secret.
package custody

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"tipbot/engine/library"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrKeyLength = errors.New("encryption key must be 32 bytes of hex")
	ErrDecrypt   = errors.New("failed to decrypt private key")
)

// Sealer encrypts and decrypts custodial key material.
type Sealer interface {
	Seal(raw []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// Keyring seals secrets with NaCl secretbox. Output is hex(nonce || box).
type Keyring struct {
	key  [keySize]byte
	rand io.Reader
}

// NewKeyring builds a Keyring from a hex encoded 32 byte key.
func NewKeyring(hexKey string) (*Keyring, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil || len(b) != keySize {
		return nil, ErrKeyLength
	}
	k := &Keyring{rand: rand.Reader}
	copy(k.key[:], b)
	return k, nil
}

// Fingerprint identifies the key in logs without revealing it.
func (k *Keyring) Fingerprint() string {
	return library.Sha256Sum(k.key[:])[:16]
}

func (k *Keyring) Seal(raw []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(k.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], raw, &nonce, &k.key)
	return hex.EncodeToString(out), nil
}

func (k *Keyring) Open(sealed string) ([]byte, error) {
	b, err := hex.DecodeString(sealed)
	if err != nil || len(b) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], b[:nonceSize])
	raw, ok := secretbox.Open(nil, b[nonceSize:], &nonce, &k.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return raw, nil
}

// GenerateKey returns a fresh hex encoded key suitable for NewKeyring.
func GenerateKey() (string, error) {
	b := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
