package library

// Wallet is the bot's own nostr identity, used to sign replies.
type Wallet struct {
	PrivateKey string
	SeedWords  string
	Account    Account
}

// Account is a hex encoded x-only public key.
type Account = string

type Sha256 = string

// Profile is the content of a kind 0 event.
type Profile struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	DisplayName1 string `json:"displayName"`
	Nip05        string `json:"nip05"`
}
