package encryption

import (
	"fmt"

	"docsign/internal/config"
	"docsign/internal/docsign"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (docsign.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeKeyring(cfg), nil
	case "test":
		return NewHeaderEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
