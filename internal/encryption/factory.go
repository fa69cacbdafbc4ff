package encryption

import (
	"fmt"

	"bk-go/internal/bk"
	"bk-go/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// It returns nil for type "none": records are stored in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (bk.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
