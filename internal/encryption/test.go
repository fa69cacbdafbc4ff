package encryption

import (
	"bytes"
	"errors"

	"bk-go/internal/bk"
)

// testHeader marks values sealed by TestEncryptor.
var testHeader = []byte("BKENC\x00\x00\x00")

// TestEncryptor is a deterministic, reversible stand-in for tests and local
// experiments. It prefixes a fixed header and does no cryptography.
type TestEncryptor struct {
	setupCalled bool
}

var _ bk.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(plaintext))
	out = append(out, testHeader...)
	return append(out, plaintext...), nil
}

func (e *TestEncryptor) Unlock(passphrase string) (bk.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ bk.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, ok := bytes.CutPrefix(ciphertext, testHeader)
	if !ok {
		return nil, errors.New("invalid test encryption header")
	}
	return bytes.Clone(plaintext), nil
}
