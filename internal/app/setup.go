package app

import (
	"fmt"
	"os"

	"bk-go/internal/config"
	"bk-go/internal/encryption"
)

// InitConfig writes a new config file at path. With age encryption it also
// generates the key pair, asking passphrase for the key's passphrase.
// Existing keys are kept so that records written earlier stay readable.
func InitConfig(path string, cfg *config.Config, passphrase PassphraseFunc) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	if cfg.Encryption.Type == "age" {
		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if !enc.IsConfigured() {
			if passphrase == nil {
				return fmt.Errorf("age encryption needs a passphrase")
			}
			pass, err := passphrase()
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			if err := enc.Setup(pass); err != nil {
				return fmt.Errorf("setting up encryption: %w", err)
			}
		}
	}

	return config.Init(path, cfg)
}
