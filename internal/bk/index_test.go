package bk_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/testutil"
)

func TestIndex_AddRemove(t *testing.T) {
	ctx := context.Background()
	idx := bk.NewIndex(bk.NewBackend(testutil.NewTestStore(t), nil), "rooms")

	steps := []struct {
		name string
		do   func() error
		want []string
	}{
		{"add 102", func() error { return idx.Add(ctx, "102") }, []string{"102"}},
		{"add 101", func() error { return idx.Add(ctx, "101") }, []string{"102", "101"}},
		{"add 102 again", func() error { return idx.Add(ctx, "102") }, []string{"102", "101"}},
		{"remove missing", func() error { return idx.Remove(ctx, "999") }, []string{"102", "101"}},
		{"remove 102", func() error { return idx.Remove(ctx, "102") }, []string{"101"}},
		{"remove 102 again", func() error { return idx.Remove(ctx, "102") }, []string{"101"}},
	}
	for _, step := range steps {
		if err := step.do(); err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		got, err := idx.List(ctx)
		if err != nil {
			t.Fatalf("%s: List() error = %v", step.name, err)
		}
		if !slices.Equal(got, step.want) {
			t.Errorf("%s: List() = %v, want %v", step.name, got, step.want)
		}
	}

	ok, err := idx.Contains(ctx, "101")
	if err != nil || !ok {
		t.Errorf("Contains(101) = %v, %v; want true, nil", ok, err)
	}
}

func TestIndex_EmptyList(t *testing.T) {
	ctx := context.Background()
	idx := bk.NewIndex(bk.NewBackend(testutil.NewTestStore(t), nil), "rooms")

	got, err := idx.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %#v, want empty non-nil slice", got)
	}
}

func TestIndex_Init(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	idx := bk.NewIndex(bk.NewBackend(store, nil), "rooms")

	if err := idx.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if ok, _ := store.Exists(ctx, bk.IndexKind, "rooms"); !ok {
		t.Fatal("Init() did not write the index record")
	}

	if err := idx.Add(ctx, "101"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Init(ctx); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	got, _ := idx.List(ctx)
	if !slices.Equal(got, []string{"101"}) {
		t.Errorf("List() after second Init() = %v, want [101]", got)
	}
}

func TestIndex_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	idx := bk.NewIndex(bk.NewBackend(testutil.NewTestStore(t), nil), "rooms")

	keys := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	var wg sync.WaitGroup
	for _, key := range keys {
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := idx.Add(ctx, key); err != nil {
					t.Errorf("Add(%q) error = %v", key, err)
				}
			}()
		}
	}
	wg.Wait()

	got, err := idx.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	slices.Sort(got)
	want := slices.Clone(keys)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("List() = %v, want each key exactly once %v", got, want)
	}
}
