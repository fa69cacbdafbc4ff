package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/store"
)

// NewTestStore returns an empty in-memory record store closed at test end.
func NewTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// ErrInjected is the cause wrapped into every failure FaultyStore injects.
var ErrInjected = errors.New("injected failure")

// Store operations FaultyStore can fail.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpExists = "exists"
	OpKeys   = "keys"
)

type fault struct{ op, kind string }

// FaultyStore wraps a store and fails chosen operations with an
// ErrUnavailable error, for exercising partial-failure paths.
type FaultyStore struct {
	inner bk.RecordStore

	mu     sync.Mutex
	faults map[fault]bool
	calls  map[string]int
}

var (
	_ bk.RecordStore = (*FaultyStore)(nil)
	_ bk.KeyScanner  = (*FaultyStore)(nil)
)

func NewFaultyStore(inner bk.RecordStore) *FaultyStore {
	return &FaultyStore{
		inner:  inner,
		faults: make(map[fault]bool),
		calls:  make(map[string]int),
	}
}

// FailOn makes op fail for records of kind until Heal is called.
func (f *FaultyStore) FailOn(op, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[fault{op, kind}] = true
}

// Heal clears every injected fault.
func (f *FaultyStore) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.faults)
}

// Calls returns how many times op was invoked, failed or not.
func (f *FaultyStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultyStore) check(op, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.faults[fault{op, kind}] {
		return bk.Unavailable(op+" "+kind, ErrInjected)
	}
	return nil
}

func (f *FaultyStore) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	if err := f.check(OpGet, kind); err != nil {
		return nil, false, err
	}
	return f.inner.Get(ctx, kind, key)
}

func (f *FaultyStore) Put(ctx context.Context, kind, key string, value []byte) error {
	if err := f.check(OpPut, kind); err != nil {
		return err
	}
	return f.inner.Put(ctx, kind, key, value)
}

func (f *FaultyStore) Delete(ctx context.Context, kind, key string) (bool, error) {
	if err := f.check(OpDelete, kind); err != nil {
		return false, err
	}
	return f.inner.Delete(ctx, kind, key)
}

func (f *FaultyStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	if err := f.check(OpExists, kind); err != nil {
		return false, err
	}
	return f.inner.Exists(ctx, kind, key)
}

func (f *FaultyStore) Keys(ctx context.Context, kind string) ([]string, error) {
	if err := f.check(OpKeys, kind); err != nil {
		return nil, err
	}
	scanner, ok := f.inner.(bk.KeyScanner)
	if !ok {
		return nil, errors.New("wrapped store cannot scan keys")
	}
	return scanner.Keys(ctx, kind)
}

func (f *FaultyStore) Close() error { return f.inner.Close() }
