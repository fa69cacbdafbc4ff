package store_test

import (
	"bytes"
	"context"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/encryption"
	"bk-go/internal/store"
	"bk-go/internal/testutil"
)

func newEncryptedStore(t *testing.T, inner bk.RecordStore) bk.RecordStore {
	t.Helper()
	enc := encryption.NewTestEncryptor()
	dec, err := enc.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	s, err := store.NewEncryptedStore(inner, enc, dec)
	if err != nil {
		t.Fatalf("NewEncryptedStore() error = %v", err)
	}
	return s
}

func TestEncryptedStore(t *testing.T) {
	testutil.RunRecordStoreTests(t, func(t *testing.T) bk.RecordStore {
		return newEncryptedStore(t, testutil.NewTestStore(t))
	})
}

func TestEncryptedStore_SealsValues(t *testing.T) {
	ctx := context.Background()
	inner := testutil.NewTestStore(t)
	s := newEncryptedStore(t, inner)

	plain := []byte(`{"id":"101"}`)
	if err := s.Put(ctx, "room", "101", plain); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	raw, _, err := inner.Get(ctx, "room", "101")
	if err != nil {
		t.Fatalf("inner Get() error = %v", err)
	}
	if bytes.Equal(raw, plain) {
		t.Error("inner store holds the plaintext value")
	}

	got, _, err := s.Get(ctx, "room", "101")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Get() = %q, want %q", got, plain)
	}
}

func TestEncryptedStore_UndecryptableValue(t *testing.T) {
	ctx := context.Background()
	inner := testutil.NewTestStore(t)
	if err := inner.Put(ctx, "room", "101", []byte(`{"id":"101"}`)); err != nil {
		t.Fatal(err)
	}
	s := newEncryptedStore(t, inner)

	if _, _, err := s.Get(ctx, "room", "101"); err == nil {
		t.Error("Get() of a plaintext value should fail to decrypt")
	}
}

func TestEncryptedStore_KeepsKeyScanner(t *testing.T) {
	s := newEncryptedStore(t, testutil.NewTestStore(t))
	if _, ok := s.(bk.KeyScanner); !ok {
		t.Error("encrypted memory store should implement KeyScanner")
	}
}

func TestNewEncryptedStore_RequiresKeys(t *testing.T) {
	if _, err := store.NewEncryptedStore(testutil.NewTestStore(t), nil, nil); err == nil {
		t.Error("NewEncryptedStore() without encryptor should fail")
	}
}
