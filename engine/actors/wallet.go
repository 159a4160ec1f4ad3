package actors

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr/nip06"
	"github.com/sasha-s/go-deadlock"
	"tipbot/engine/library"
)

var currentWallet library.Wallet
var currentWalletMutex = &deadlock.Mutex{}

// BotWallet returns the nostr identity the bot signs replies with. A hex secret from the
// environment wins, then wallet.dat in rootDir. Otherwise a new seed is generated and saved.
func BotWallet(rootDir, secret string) (library.Wallet, error) {
	currentWalletMutex.Lock()
	defer currentWalletMutex.Unlock()
	if len(currentWallet.PrivateKey) > 0 {
		return currentWallet, nil
	}
	switch {
	case secret != "":
		pub, err := getPubKey(secret)
		if err != nil {
			return library.Wallet{}, fmt.Errorf("TIPBOT_NOSTR_SECRET: %w", err)
		}
		currentWallet = library.Wallet{PrivateKey: secret, Account: pub}
		return currentWallet, nil
	default:
		if w, ok := getWalletFromDisk(rootDir); ok {
			currentWallet = w
			return currentWallet, nil
		}
	}
	library.LogCLI("Generating a new bot identity, write down the seed words if you want to keep it", 4)
	w, err := makeNewWallet()
	if err != nil {
		return library.Wallet{}, err
	}
	currentWallet = w
	fmt.Printf("\n\n~NEW BOT IDENTITY~\nPublic Key: %s\nSeed Words: %s\n\n", currentWallet.Account, currentWallet.SeedWords)
	if err := persistCurrentWallet(rootDir); err != nil {
		return library.Wallet{}, err
	}
	return currentWallet, nil
}

func makeNewWallet() (library.Wallet, error) {
	seedWords, err := nip06.GenerateSeedWords()
	if err != nil {
		return library.Wallet{}, err
	}
	seed := nip06.SeedFromWords(seedWords)
	sk, err := nip06.PrivateKeyFromSeed(seed)
	if err != nil {
		return library.Wallet{}, err
	}
	pub, err := getPubKey(sk)
	if err != nil {
		return library.Wallet{}, err
	}
	return library.Wallet{
		PrivateKey: sk,
		SeedWords:  seedWords,
		Account:    pub,
	}, nil
}

func getPubKey(privateKey string) (string, error) {
	keyb, err := hex.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("decoding key from hex: %w", err)
	}
	if len(keyb) != 32 {
		return "", fmt.Errorf("key is %d bytes, want 32", len(keyb))
	}
	_, pubkey := btcec.PrivKeyFromBytes(keyb)
	return hex.EncodeToString(schnorr.SerializePubKey(pubkey)), nil
}

func persistCurrentWallet(rootDir string) error {
	bytes, err := json.Marshal(currentWallet)
	if err != nil {
		return err
	}
	if err := os.WriteFile(rootDir+"wallet.dat", bytes, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func getWalletFromDisk(rootDir string) (w library.Wallet, ok bool) {
	file, err := os.ReadFile(rootDir + "wallet.dat")
	if err != nil {
		library.LogCLI(fmt.Sprintf("Error getting wallet file: %s", err.Error()), 3)
		return library.Wallet{}, false
	}
	err = json.Unmarshal(file, &w)
	if err != nil || len(w.PrivateKey) == 0 {
		library.LogCLI(fmt.Sprintf("Error parsing wallet file: %v", err), 2)
		return library.Wallet{}, false
	}
	return w, true
}

func resetWallet() {
	currentWalletMutex.Lock()
	defer currentWalletMutex.Unlock()
	currentWallet = library.Wallet{}
}
