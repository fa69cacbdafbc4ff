package bk

// Encryptor seals record values before they reach a backend. Sealing needs
// only the public key; opening needs the private key, which is unlocked once
// per process with a passphrase.
type Encryptor interface {
	// Setup generates a key pair and protects the private key with passphrase.
	// Called by `bk config init`.
	Setup(passphrase string) error

	// Encrypt returns the ciphertext of plaintext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Unlock opens the private key. It fails on a wrong passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material is present.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory. It is never
// written to disk.
type DecryptionContext interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}
