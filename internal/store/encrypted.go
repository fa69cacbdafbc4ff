package store

import (
	"context"
	"errors"
	"fmt"

	"bk-go/internal/bk"
)

// EncryptedStore seals record values before handing them to the wrapped
// store. Kinds and keys stay in plaintext so lookups keep working.
type EncryptedStore struct {
	inner bk.RecordStore
	enc   bk.Encryptor
	dec   bk.DecryptionContext
}

var _ bk.RecordStore = (*EncryptedStore)(nil)

// scanningEncryptedStore is returned when the wrapped store can enumerate keys.
type scanningEncryptedStore struct {
	*EncryptedStore
	bk.KeyScanner
}

// NewEncryptedStore wraps inner. dec comes from Encryptor.Unlock; the result
// keeps inner's KeyScanner capability.
func NewEncryptedStore(inner bk.RecordStore, enc bk.Encryptor, dec bk.DecryptionContext) (bk.RecordStore, error) {
	if enc == nil || dec == nil {
		return nil, errors.New("encrypted store needs an encryptor and an unlocked decryption context")
	}
	s := &EncryptedStore{inner: inner, enc: enc, dec: dec}
	if scanner, ok := inner.(bk.KeyScanner); ok {
		return scanningEncryptedStore{EncryptedStore: s, KeyScanner: scanner}, nil
	}
	return s, nil
}

func (s *EncryptedStore) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	sealed, found, err := s.inner.Get(ctx, kind, key)
	if err != nil || !found {
		return nil, found, err
	}
	plain, err := s.dec.Decrypt(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("decrypting %s %q: %w", kind, key, err)
	}
	return plain, true, nil
}

func (s *EncryptedStore) Put(ctx context.Context, kind, key string, value []byte) error {
	sealed, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting %s %q: %w", kind, key, err)
	}
	return s.inner.Put(ctx, kind, key, sealed)
}

func (s *EncryptedStore) Delete(ctx context.Context, kind, key string) (bool, error) {
	return s.inner.Delete(ctx, kind, key)
}

func (s *EncryptedStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	return s.inner.Exists(ctx, kind, key)
}

func (s *EncryptedStore) Close() error { return s.inner.Close() }
