package bk

import (
	"context"
	"sync"
)

// KeyLocks serializes access to individual (kind, key) pairs. Holders of
// different keys never contend. Entries are dropped once no goroutine holds
// or waits on them, so the map only grows with the number of keys in flight.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyLocks creates an empty lock table.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// Acquire blocks until the lock for (kind, key) is held or ctx is done.
// The returned release func must be called exactly once.
func (l *KeyLocks) Acquire(ctx context.Context, kind, key string) (func(), error) {
	id := kind + "\x00" + key

	l.mu.Lock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[id] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(id, kl)
		return nil, Unavailable("waiting for "+kind+"/"+key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.drop(id, kl)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (l *KeyLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyLocks) drop(id string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, id)
	}
}
