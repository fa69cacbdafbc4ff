package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"bk-go/internal/bk"
)

// RunRecordStoreTests checks the RecordStore contract against stores built
// by newStore. Each subtest gets a fresh store.
func RunRecordStoreTests(t *testing.T, newStore func(t *testing.T) bk.RecordStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		v, found, err := s.Get(ctx, "room", "101")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if found || v != nil {
			t.Errorf("Get() = %q, %v, want nil, false", v, found)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "room", "101", []byte(`{"id":"101"}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		v, found, err := s.Get(ctx, "room", "101")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !found || string(v) != `{"id":"101"}` {
			t.Errorf("Get() = %q, %v, want %q, true", v, found, `{"id":"101"}`)
		}
	})

	t.Run("put replaces whole value", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "index", "rooms", []byte(`["101","102","103"]`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := s.Put(ctx, "index", "rooms", []byte(`["7"]`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		v, _, err := s.Get(ctx, "index", "rooms")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(v) != `["7"]` {
			t.Errorf("Get() = %q, want %q", v, `["7"]`)
		}
	})

	t.Run("kinds are separate namespaces", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "room", "k", []byte(`"room"`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := s.Put(ctx, "breakfast_session", "k", []byte(`"session"`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		v, _, _ := s.Get(ctx, "room", "k")
		if string(v) != `"room"` {
			t.Errorf("Get(room) = %q, want %q", v, `"room"`)
		}
		ok, _ := s.Exists(ctx, "index", "k")
		if ok {
			t.Error("Exists(index, k) = true, want false")
		}
	})

	t.Run("exists and delete", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "room", "101", []byte(`{}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		ok, err := s.Exists(ctx, "room", "101")
		if err != nil || !ok {
			t.Fatalf("Exists() = %v, %v, want true, nil", ok, err)
		}

		deleted, err := s.Delete(ctx, "room", "101")
		if err != nil || !deleted {
			t.Fatalf("Delete() = %v, %v, want true, nil", deleted, err)
		}
		deleted, err = s.Delete(ctx, "room", "101")
		if err != nil || deleted {
			t.Fatalf("second Delete() = %v, %v, want false, nil", deleted, err)
		}
		ok, err = s.Exists(ctx, "room", "101")
		if err != nil || ok {
			t.Errorf("Exists() after Delete = %v, %v, want false, nil", ok, err)
		}
	})

	t.Run("odd keys", func(t *testing.T) {
		s := newStore(t)
		keys := []string{"a/b", "../up", ".hidden", "with space", "ünï", "%2F", "Room-101"}
		for _, k := range keys {
			if err := s.Put(ctx, "room", k, []byte(fmt.Sprintf("%q", k))); err != nil {
				t.Fatalf("Put(%q) error = %v", k, err)
			}
		}
		for _, k := range keys {
			v, found, err := s.Get(ctx, "room", k)
			if err != nil || !found {
				t.Fatalf("Get(%q) = %v, %v", k, found, err)
			}
			if want := fmt.Sprintf("%q", k); string(v) != want {
				t.Errorf("Get(%q) = %s, want %s", k, v, want)
			}
		}
		if scanner, ok := s.(bk.KeyScanner); ok {
			got, err := scanner.Keys(ctx, "room")
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			want := slices.Clone(keys)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("Keys() = %q, want %q", got, want)
			}
		}
	})

	t.Run("keys of empty kind", func(t *testing.T) {
		s := newStore(t)
		scanner, ok := s.(bk.KeyScanner)
		if !ok {
			t.Skip("store does not scan keys")
		}
		got, err := scanner.Keys(ctx, "room")
		if err != nil {
			t.Fatalf("Keys() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Keys() = %q, want empty", got)
		}
	})

	t.Run("concurrent writers to distinct keys", func(t *testing.T) {
		s := newStore(t)
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("%03d", i)
				errs <- s.Put(ctx, "room", key, []byte(fmt.Sprintf(`{"id":%q}`, key)))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}
		for i := range n {
			key := fmt.Sprintf("%03d", i)
			if ok, err := s.Exists(ctx, "room", key); err != nil || !ok {
				t.Errorf("Exists(%q) = %v, %v, want true, nil", key, ok, err)
			}
		}
	})
}
