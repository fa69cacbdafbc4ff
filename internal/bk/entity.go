package bk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Backend couples a RecordStore with the per-key locks that make
// Entity.Mutate behave as an atomic read-modify-write. Every Entity that
// touches the same store must be built from the same Backend.
type Backend struct {
	store  RecordStore
	locks  *KeyLocks
	logger Logger
}

// NewBackend wraps store. A nil logger discards output.
func NewBackend(store RecordStore, logger Logger) *Backend {
	return &Backend{
		store:  store,
		locks:  NewKeyLocks(),
		logger: loggerOrNop(logger),
	}
}

// Store returns the underlying record store.
func (b *Backend) Store() RecordStore { return b.store }

// Locks returns the lock table shared by all entities of this backend.
func (b *Backend) Locks() *KeyLocks { return b.locks }

// errSkipWrite lets a mutate func end the operation without writing.
var errSkipWrite = errors.New("skip write")

// Entity is a typed view over exactly one record.
type Entity[T any] struct {
	backend *Backend
	kind    string
	key     string
	initial func() T
}

// NewEntity returns the entity stored under (kind, key). initial builds the
// state reported while no record exists; it is called on every miss so
// callers may return fresh slices and maps.
func NewEntity[T any](b *Backend, kind, key string, initial func() T) *Entity[T] {
	return &Entity[T]{backend: b, kind: kind, key: key, initial: initial}
}

func (e *Entity[T]) Kind() string { return e.kind }
func (e *Entity[T]) Key() string  { return e.key }

// State returns the current state, or the initial state when the record is absent.
func (e *Entity[T]) State(ctx context.Context) (T, error) {
	state, _, err := e.load(ctx)
	return state, err
}

// Exists reports whether the record is stored.
func (e *Entity[T]) Exists(ctx context.Context) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	return e.backend.store.Exists(ctx, e.kind, e.key)
}

// Save unconditionally replaces the stored state.
func (e *Entity[T]) Save(ctx context.Context, value T) error {
	release, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer release()
	return e.put(ctx, value)
}

// Mutate reads the current state, applies fn and writes the result while
// holding the key lock, so no other writer to this key can interleave.
// If fn returns an error nothing is written and the error is returned.
func (e *Entity[T]) Mutate(ctx context.Context, fn func(T) (T, error)) (T, error) {
	return e.mutate(ctx, false, fn)
}

// Update is Mutate for records that must already exist; it fails with
// ErrNotFound instead of starting from the initial state.
func (e *Entity[T]) Update(ctx context.Context, fn func(T) (T, error)) (T, error) {
	return e.mutate(ctx, true, fn)
}

// ensure writes value only when no record exists. It returns the state that
// is stored afterwards and whether this call created it.
func (e *Entity[T]) ensure(ctx context.Context, value T) (T, bool, error) {
	var zero T
	release, err := e.lock(ctx)
	if err != nil {
		return zero, false, err
	}
	defer release()

	current, found, err := e.load(ctx)
	if err != nil {
		return zero, false, err
	}
	if found {
		return current, false, nil
	}
	if err := e.put(ctx, value); err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// remove deletes the record under the key lock so it cannot race a mutate.
func (e *Entity[T]) remove(ctx context.Context) (bool, error) {
	release, err := e.lock(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return e.backend.store.Delete(ctx, e.kind, e.key)
}

func (e *Entity[T]) mutate(ctx context.Context, mustExist bool, fn func(T) (T, error)) (T, error) {
	var zero T
	release, err := e.lock(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	current, found, err := e.load(ctx)
	if err != nil {
		return zero, err
	}
	if mustExist && !found {
		return zero, fmt.Errorf("%s %q: %w", e.kind, e.key, ErrNotFound)
	}

	next, err := fn(current)
	if errors.Is(err, errSkipWrite) {
		return current, nil
	}
	if err != nil {
		return zero, err
	}

	if err := e.put(ctx, next); err != nil {
		return zero, err
	}
	return next, nil
}

func (e *Entity[T]) load(ctx context.Context) (T, bool, error) {
	var zero T
	if err := e.validate(); err != nil {
		return zero, false, err
	}

	data, found, err := e.backend.store.Get(ctx, e.kind, e.key)
	if err != nil {
		return zero, false, err
	}
	if !found {
		return e.initial(), false, nil
	}

	var state T
	if err := json.Unmarshal(data, &state); err != nil {
		return zero, false, fmt.Errorf("decoding %s %q: %w", e.kind, e.key, err)
	}
	return state, true, nil
}

func (e *Entity[T]) put(ctx context.Context, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s %q: %w", e.kind, e.key, err)
	}
	return e.backend.store.Put(ctx, e.kind, e.key, data)
}

func (e *Entity[T]) lock(ctx context.Context) (func(), error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e.backend.locks.Acquire(ctx, e.kind, e.key)
}

func (e *Entity[T]) validate() error {
	if strings.TrimSpace(e.key) == "" {
		return fmt.Errorf("%s key %q: %w", e.kind, e.key, ErrInvalidKey)
	}
	return nil
}
