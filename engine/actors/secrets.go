package actors

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secrets never live in the config file.
type Secrets struct {
	EncryptionKey string `env:"TIPBOT_ENCRYPTION_KEY,required"`
	NostrSecret   string `env:"TIPBOT_NOSTR_SECRET"`
}

// ParseSecrets loads Secrets from the environment.
func ParseSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
