package custody

import (
	"bytes"
	"errors"
	"testing"
)

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	k, err := NewKeyring(key)
	if err != nil {
		t.Fatalf("NewKeyring() error = %v", err)
	}
	return k
}

func TestSealOpen(t *testing.T) {
	k := newTestKeyring(t)
	raw := []byte("sixty four bytes of very secret key material would go right here")

	sealed, err := k.Seal(raw)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Contains([]byte(sealed), raw) {
		t.Fatal("sealed output contains plaintext")
	}
	got, err := k.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("Open() = %q, want %q", got, raw)
	}

	again, _ := k.Seal(raw)
	if again == sealed {
		t.Error("two seals of the same secret share a nonce")
	}
}

func TestOpenRejectsForeignKeyAndGarbage(t *testing.T) {
	a := newTestKeyring(t)
	b := newTestKeyring(t)
	sealed, err := a.Seal([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		sealed string
	}{
		{"other key", sealed},
		{"not hex", "zz"},
		{"too short", "00ff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Open(tt.sealed); !errors.Is(err, ErrDecrypt) {
				t.Errorf("Open() error = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestNewKeyringValidatesLength(t *testing.T) {
	for _, key := range []string{"", "abcd", "zz"} {
		if _, err := NewKeyring(key); !errors.Is(err, ErrKeyLength) {
			t.Errorf("NewKeyring(%q) error = %v, want ErrKeyLength", key, err)
		}
	}
}

func TestKeypairAddressDerivable(t *testing.T) {
	addr, secret, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	derived, err := AddressOf(secret)
	if err != nil {
		t.Fatalf("AddressOf() error = %v", err)
	}
	if derived != addr {
		t.Errorf("AddressOf() = %s, want %s", derived, addr)
	}
	if !ValidAddress(addr) {
		t.Errorf("ValidAddress(%s) = false", addr)
	}
	if ValidAddress("not-an-address") {
		t.Error("ValidAddress accepted garbage")
	}
}
