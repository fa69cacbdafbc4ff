package bk_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/testutil"
)

type counter struct {
	N int `json:"n"`
}

func newCounter(b *bk.Backend, key string) *bk.Entity[counter] {
	return bk.NewEntity(b, "counter", key, func() counter { return counter{} })
}

func TestEntity_StateOfMissingRecord(t *testing.T) {
	ctx := context.Background()
	b := bk.NewBackend(testutil.NewTestStore(t), nil)
	e := bk.NewEntity(b, "session", "2024-01-01", func() []string { return []string{"initial"} })

	got, err := e.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if len(got) != 1 || got[0] != "initial" {
		t.Errorf("State() = %v, want [initial]", got)
	}

	exists, err := e.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true before any write")
	}
}

func TestEntity_SaveThenState(t *testing.T) {
	ctx := context.Background()
	b := bk.NewBackend(testutil.NewTestStore(t), nil)
	e := newCounter(b, "a")

	if err := e.Save(ctx, counter{N: 7}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := e.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if got.N != 7 {
		t.Errorf("State().N = %d, want 7", got.N)
	}

	if err := e.Save(ctx, counter{N: 3}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	got, _ = e.State(ctx)
	if got.N != 3 {
		t.Errorf("State().N after replace = %d, want 3", got.N)
	}
}

func TestEntity_Mutate(t *testing.T) {
	ctx := context.Background()

	t.Run("starts from initial state", func(t *testing.T) {
		b := bk.NewBackend(testutil.NewTestStore(t), nil)
		e := newCounter(b, "a")

		got, err := e.Mutate(ctx, func(c counter) (counter, error) {
			c.N++
			return c, nil
		})
		if err != nil {
			t.Fatalf("Mutate() error = %v", err)
		}
		if got.N != 1 {
			t.Errorf("Mutate() = %d, want 1", got.N)
		}
	})

	t.Run("error leaves record untouched", func(t *testing.T) {
		b := bk.NewBackend(testutil.NewTestStore(t), nil)
		e := newCounter(b, "a")
		if err := e.Save(ctx, counter{N: 5}); err != nil {
			t.Fatal(err)
		}

		errBoom := errors.New("boom")
		_, err := e.Mutate(ctx, func(c counter) (counter, error) {
			c.N = 100
			return c, errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("Mutate() error = %v, want %v", err, errBoom)
		}
		got, _ := e.State(ctx)
		if got.N != 5 {
			t.Errorf("State().N = %d, want 5", got.N)
		}
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		b := bk.NewBackend(testutil.NewTestStore(t), nil)

		const workers = 64
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Each goroutine builds its own Entity; the lock is per backend.
				_, err := newCounter(b, "shared").Mutate(ctx, func(c counter) (counter, error) {
					c.N++
					return c, nil
				})
				if err != nil {
					t.Errorf("Mutate() error = %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := newCounter(b, "shared").State(ctx)
		if err != nil {
			t.Fatalf("State() error = %v", err)
		}
		if got.N != workers {
			t.Errorf("State().N = %d, want %d", got.N, workers)
		}
		if n := b.Locks().Len(); n != 0 {
			t.Errorf("locks left held = %d, want 0", n)
		}
	})
}

func TestEntity_Update(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	b := bk.NewBackend(store, nil)
	e := newCounter(b, "missing")

	_, err := e.Update(ctx, func(c counter) (counter, error) {
		c.N++
		return c, nil
	})
	if !errors.Is(err, bk.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
	if ok, _ := store.Exists(ctx, "counter", "missing"); ok {
		t.Error("Update() on a missing record created it")
	}

	if err := e.Save(ctx, counter{N: 1}); err != nil {
		t.Fatal(err)
	}
	got, err := e.Update(ctx, func(c counter) (counter, error) {
		c.N *= 10
		return c, nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.N != 10 {
		t.Errorf("Update() = %d, want 10", got.N)
	}
}

func TestEntity_InvalidKey(t *testing.T) {
	ctx := context.Background()
	b := bk.NewBackend(testutil.NewTestStore(t), nil)

	for _, key := range []string{"", "   "} {
		e := newCounter(b, key)
		if _, err := e.State(ctx); !errors.Is(err, bk.ErrInvalidKey) {
			t.Errorf("State() with key %q error = %v, want ErrInvalidKey", key, err)
		}
		if err := e.Save(ctx, counter{}); !errors.Is(err, bk.ErrInvalidKey) {
			t.Errorf("Save() with key %q error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestEntity_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	if err := store.Put(ctx, "counter", "bad", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	b := bk.NewBackend(store, nil)

	if _, err := newCounter(b, "bad").State(ctx); err == nil {
		t.Fatal("State() expected decode error")
	}
}

func TestEntity_StoreFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(testutil.NewTestStore(t))
	faulty.FailOn(testutil.OpPut, "counter")
	b := bk.NewBackend(faulty, nil)

	_, err := newCounter(b, "a").Mutate(ctx, func(c counter) (counter, error) {
		c.N++
		return c, nil
	})
	if !errors.Is(err, bk.ErrUnavailable) {
		t.Errorf("Mutate() error = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, testutil.ErrInjected) {
		t.Errorf("Mutate() error = %v, want cause ErrInjected", err)
	}
}
